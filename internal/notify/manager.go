package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/metrics"
	"github.com/iaros/marketwatch/internal/models"
)

// DeliveryResult is what one channel send produced, logged by the caller
// as a models.NotificationLog row.
type DeliveryResult struct {
	Channel  models.NotificationChannelKind
	Metadata []byte
	Success  bool
	Error    string
}

// Manager fans a single rendered notification out to every configured
// channel in parallel, per manager.py's NotificationManager.send_async.
type Manager struct {
	channels []Channel
	logger   *zap.Logger
}

// New constructs a Manager over the given channel set.
func New(channels []Channel, logger *zap.Logger) *Manager {
	return &Manager{channels: channels, logger: logger}
}

// Send delivers subject/message to recipient over every channel
// concurrently and returns one DeliveryResult per channel. A failing
// channel never blocks or fails the others.
func (m *Manager) Send(ctx context.Context, recipient, subject, message string) []DeliveryResult {
	results := make([]DeliveryResult, len(m.channels))

	var wg sync.WaitGroup
	wg.Add(len(m.channels))
	for i, ch := range m.channels {
		go func(i int, ch Channel) {
			defer wg.Done()
			results[i] = m.sendOne(ctx, ch, recipient, subject, message)
		}(i, ch)
	}
	wg.Wait()

	return results
}

func (m *Manager) sendOne(ctx context.Context, ch Channel, recipient, subject, message string) DeliveryResult {
	start := time.Now()
	metadata, err := ch.Send(ctx, recipient, subject, message)
	duration := time.Since(start)

	success := err == nil
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		m.logger.Error("notification_failed", zap.String("channel", string(ch.Kind())), zap.Error(err))
	}

	metrics.NotificationSendDurationSeconds.WithLabelValues(string(ch.Kind())).Observe(duration.Seconds())
	metrics.NotificationsSentTotal.WithLabelValues(string(ch.Kind()), boolLabel(success)).Inc()

	return DeliveryResult{Channel: ch.Kind(), Metadata: metadata, Success: success, Error: errMsg}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// RuleStore looks up the alert rules that apply to a candidate's owning
// product, and records the timestamp of a rule's last notification (for
// cooldown). Implemented by internal/storage.
type RuleStore interface {
	ActiveRulesForProduct(ctx context.Context, userID, monitoredID uuid.UUID) ([]models.AlertRule, error)
	TouchLastNotified(ctx context.Context, ruleID uuid.UUID, at time.Time) error
}

// LogStore persists NotificationLog rows and answers the duplicate-window
// check. Implemented by internal/storage.
type LogStore interface {
	CreateNotificationLog(ctx context.Context, log models.NotificationLog) error
	HasRecentDuplicate(ctx context.Context, userID uuid.UUID, subject, message string, window time.Duration) (bool, error)
}
