// Package notify tells buyers and sellers about order and auction events.
package notify

import (
	"context"

	"go.uber.org/zap"
)

type Notification struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	EventID string `json:"event_id"`
}

// Notifier delivers one notification (email, push, ...).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier only logs. Used until a real channel is configured.
type LogNotifier struct{ Log *zap.Logger }

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("notify",
		zap.String("to", n.To),
		zap.String("subject", n.Subject),
		zap.String("event_id", n.EventID))
	return nil
}
