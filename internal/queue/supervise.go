package queue

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
)

// Session is a consumer bound to one open broker channel.
type Session struct {
	Consumer *Consumer
	Close    func()
}

// DialFunc opens a new session on the event feed.
type DialFunc func(ctx context.Context) (*Session, error)

// Supervise keeps a consumer running until ctx ends. A session that fails
// to open or stops consuming is replaced after backoff. onConnect runs each
// time a session is about to consume, before any of its messages.
func Supervise(ctx context.Context, dial DialFunc, backoff util.Backoff, onConnect func()) {
	if backoff == nil {
		backoff = util.NoBackoff
	}
	failures := 0
	for ctx.Err() == nil {
		s, err := dial(ctx)
		if err == nil {
			if onConnect != nil {
				onConnect()
			}
			err = s.Consumer.Run(ctx)
			if s.Close != nil {
				s.Close()
			}
			if err == nil {
				return
			}
			failures = 0
		}
		if ctx.Err() != nil {
			return
		}
		failures++
		logger.Warn("[Queue] Event consumer stopped, reconnecting", "attempt", failures, "err", err)

		if d := backoff(failures); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}
