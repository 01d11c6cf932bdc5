// Package audit writes the append-only per-stage JSON records of spec.md
// §4.10, one file per fetch-pipeline stage event, for forensic replay.
//
// Grounded on
// _examples/original_source/market_scraper/app/utils/audit_logger.py
// (audit_scrape).
package audit

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/metrics"
)

// Stage names the fetch-pipeline stage vocabulary of spec.md §4.10 /
// SPEC_FULL.md §3.
type Stage string

const (
	StageGet               Stage = "get"
	StageCache             Stage = "cache"
	StageParser            Stage = "parser"
	StagePersist           Stage = "persist"
	StageError             Stage = "error"
	StageBlockRecovered    Stage = "block_recovered"
	StageCaptchaRecovered  Stage = "captcha_recovered"
)

// Record is the JSON document written for one audit event.
type Record struct {
	Timestamp  string      `json:"timestamp"`
	Stage      Stage       `json:"stage"`
	URL        string      `json:"url"`
	Payload    interface{} `json:"payload"`
	HTMLLength *int        `json:"html_length"`
	Details    interface{} `json:"details,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Logger writes audit records under baseDir/<YYYY-MM-DD>/<HH-MM-SS>_<rand8>_<stage>.json.
// Write failures are logged but never propagated: spec.md §4.10 "Failures
// in audit writing are logged but do not affect the scraping path."
type Logger struct {
	baseDir string
	logger  *zap.Logger
	nowFn   func() time.Time
}

// New constructs a Logger rooted at baseDir (default "logs/audit" per
// spec.md §4.10 if baseDir is empty).
func New(baseDir string, logger *zap.Logger) *Logger {
	if baseDir == "" {
		baseDir = "logs/audit"
	}
	return &Logger{baseDir: baseDir, logger: logger, nowFn: time.Now}
}

func randHex8() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}

// Scrape writes one audit record for a fetch-pipeline stage event.
func (l *Logger) Scrape(stage Stage, url string, payload interface{}, html *string, details interface{}, errMsg string) {
	start := time.Now()
	now := l.nowFn().UTC()

	dateDir := now.Format("2006-01-02")
	timeStr := now.Format("15-04-05")

	dirPath := filepath.Join(l.baseDir, dateDir)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		metrics.AuditErrorsTotal.WithLabelValues(string(stage)).Inc()
		l.logger.Error("audit_dir_create_failed", zap.String("path", dirPath), zap.Error(err))
		return
	}

	filename := fmt.Sprintf("%s_%s_%s.json", timeStr, randHex8(), stage)
	fullPath := filepath.Join(dirPath, filename)

	var htmlLen *int
	if html != nil {
		n := len(*html)
		htmlLen = &n
	}

	record := Record{
		Timestamp:  now.Format(time.RFC3339Nano) + "z",
		Stage:      stage,
		URL:        url,
		Payload:    payload,
		HTMLLength: htmlLen,
		Details:    details,
		Error:      errMsg,
	}

	metrics.AuditRecordsTotal.WithLabelValues(string(stage)).Inc()
	if html != nil {
		metrics.AuditHTMLLengthBytes.WithLabelValues(string(stage)).Observe(float64(len(*html)))
	}

	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		metrics.AuditErrorsTotal.WithLabelValues(string(stage)).Inc()
		l.logger.Error("audit_marshal_failed", zap.String("filepath", fullPath), zap.Error(err))
		return
	}

	if err := os.WriteFile(fullPath, encoded, 0o644); err != nil {
		metrics.AuditErrorsTotal.WithLabelValues(string(stage)).Inc()
		l.logger.Error("audit_write_failed", zap.String("filepath", fullPath), zap.Error(err))
		return
	}

	metrics.AuditRecordDurationSeconds.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
