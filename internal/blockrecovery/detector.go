// Package blockrecovery implements block/CAPTCHA detection and the
// recovery state machine of spec.md §4.6.
//
// Grounded on _examples/original_source/market_scraper/app/utils/block_detector.py
// (detect_block) and block_recovery.py (BlockRecoveryManager.handle_block).
package blockrecovery

import "strings"

// BlockType enumerates the block signals spec.md §4.6 "Detection" names.
type BlockType string

const (
	BlockNone    BlockType = "ok"
	BlockHTTP429 BlockType = "429"
	BlockHTTP403 BlockType = "403"
	BlockCaptcha BlockType = "captcha"
)

// Response is the subset of an HTTP response the detector inspects.
type Response struct {
	StatusCode int
	Body       string
}

// Detect classifies resp per spec.md §4.6 "Detection": CAPTCHA text takes
// precedence over status code, then 429, then 403, else OK. The
// "digite os caracteres" Brazilian-marketplace CAPTCHA phrase is carried
// verbatim from original_source (SPEC_FULL.md §3).
func Detect(resp Response) BlockType {
	text := strings.ToLower(resp.Body)
	if strings.Contains(text, "captcha") || strings.Contains(text, "digite os caracteres") {
		return BlockCaptcha
	}
	switch resp.StatusCode {
	case 429:
		return BlockHTTP429
	case 403:
		return BlockHTTP403
	default:
		return BlockNone
	}
}

// SeverityLevel maps a block type to its severity contribution
// (spec.md §4.6: "{429:1, 403:2, captcha:3}").
func SeverityLevel(bt BlockType) int {
	switch bt {
	case BlockHTTP429:
		return 1
	case BlockHTTP403:
		return 2
	case BlockCaptcha:
		return 3
	default:
		return 0
	}
}
