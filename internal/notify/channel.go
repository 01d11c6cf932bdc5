// Package notify implements the Notification Fan-out subsystem of
// spec.md §4.9/§4.10: per-channel delivery, cooldown and duplicate
// suppression, and parallel dispatch across channels.
//
// Grounded on
// _examples/original_source/market_alert/app/notifications/manager.py
// (NotificationManager/dispatch_price_alerts) and the teacher's parallel
// dispatch idiom in
// services/order_processing_platform/src/services/order_processing_engine.go
// (sync.WaitGroup fan-out with per-goroutine result capture).
package notify

import (
	"context"

	"github.com/iaros/marketwatch/internal/models"
)

// Channel delivers one rendered notification. Implementations for
// email/SMS/push/WhatsApp/Slack/webhook each wrap a real provider SDK or
// HTTP API; spec.md §4.9 Non-goals exclude provider integration detail,
// so only the interface and a minimal webhook implementation are carried
// here (see SPEC_FULL.md §2 domain stack).
type Channel interface {
	Kind() models.NotificationChannelKind
	Send(ctx context.Context, recipient string, subject, message string) (metadata []byte, err error)
}
