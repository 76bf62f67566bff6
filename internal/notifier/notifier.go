package notifier

import (
	"context"
	"time"
)

// StatusChange is published whenever a server's recorded status moves.
type StatusChange struct {
	ServerID string    `json:"serverId"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Source   string    `json:"source"`
	Version  int64     `json:"version"`
	At       time.Time `json:"at"`
}

type Notifier interface {
	StatusChanged(ctx context.Context, change StatusChange) error
}

type noopNotifier struct{}

// NewNoop returns a Notifier that drops every message. It is used when no
// brokers are configured.
func NewNoop() Notifier { return noopNotifier{} }

func (noopNotifier) StatusChanged(context.Context, StatusChange) error { return nil }
