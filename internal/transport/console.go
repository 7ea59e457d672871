package transport

import (
	"context"

	"snusstats/pkg/logx"
)

// ConsoleSink prints reminders to the log. It is always reachable and
// never produces action events. Used for tokenless/dev runs.
type ConsoleSink struct {
	log logx.Logger
}

func NewConsoleSink(log logx.Logger) *ConsoleSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ConsoleSink{log: log}
}

func (s *ConsoleSink) Start(ctx context.Context) error { return nil }
func (s *ConsoleSink) Stop(ctx context.Context) error  { return nil }

func (s *ConsoleSink) Deliver(ctx context.Context, d Delivery) error {
	s.log.Info("reminder",
		logx.Int("id", d.ID),
		logx.String("title", d.Title),
		logx.String("body", d.Body),
	)
	return nil
}

func (s *ConsoleSink) CheckReachable(ctx context.Context) error { return nil }

func (s *ConsoleSink) OnAction(fn ActionFunc) {}
