package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/badrx15/creavisionbot/internal/clock"
	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
	"github.com/badrx15/creavisionbot/internal/notify"
	obsmetrics "github.com/badrx15/creavisionbot/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_sweeper_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	ConversationSvc conversationdomain.Service
	Notifier        notify.Notifier
	Config          Config                      `optional:"true"`
	Metrics         *obsmetrics.SweeperMetrics `optional:"true"`
}

// Sweeper expires idle conversations on a fixed period and tells each user.
type Sweeper struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	conversationSvc conversationdomain.Service
	notifier        notify.Notifier
	metrics         *obsmetrics.SweeperMetrics
	wait            func(ctx context.Context, d time.Duration) bool
}

func New(p Params) (*Sweeper, error) {
	if p.Log == nil || p.Clock == nil || p.ConversationSvc == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Sweeper()
	}
	return &Sweeper{
		log:             p.Log.Named("sweeper").With(zap.String("component", "sweeper")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		conversationSvc: p.ConversationSvc,
		notifier:        p.Notifier,
		metrics:         metrics,
		wait:            sleep,
	}, nil
}

// RunOnce performs one sweep and notifies every expired user.
// A failed notification is logged and does not stop the others.
func (s *Sweeper) RunOnce(parent context.Context) (err error) {
	start := s.clock.Now()
	s.metrics.IncRun()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
		}
		s.metrics.ObserveDuration(s.clock.Now().Sub(start))
		if err != nil {
			s.metrics.IncError(err)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	expired, err := s.conversationSvc.Sweep(ctx, s.cfg.Timeout)
	if err != nil {
		// A partial pass still deleted these; tell them before retrying.
		s.notifyAll(parent, expired)
		return err
	}
	s.metrics.AddExpired(len(expired))
	s.notifyAll(parent, expired)

	s.log.Info("sweep finished",
		zap.Int("expired", len(expired)),
		zap.Duration("timeout", s.cfg.Timeout),
	)
	return nil
}

func (s *Sweeper) notifyAll(ctx context.Context, userIDs []int64) {
	if len(userIDs) == 0 {
		return
	}
	text := expiryMessage(s.cfg.Timeout)
	for _, userID := range userIDs {
		if err := s.notifier.Notify(ctx, userID, text); err != nil {
			s.metrics.IncNotifyFailed()
			s.log.Warn("expiry notification failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
}

// RunForever sleeps for the timeout, sweeps, and repeats until ctx is done.
// After a failed sweep it waits RetryDelay instead of the full period.
func (s *Sweeper) RunForever(ctx context.Context) {
	delay := s.cfg.Timeout
	for {
		nextRun := s.clock.Now().Add(delay)
		if !s.wait(ctx, delay) {
			return
		}
		s.metrics.ObserveRunLoopLag(s.clock.Now().Sub(nextRun))

		if err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("sweep failed, retrying",
				zap.Duration("retry_delay", s.cfg.RetryDelay),
				zap.String("reason", obsmetrics.ClassifySweepError(err)),
				zap.Error(err),
			)
			delay = s.cfg.RetryDelay
			continue
		}
		delay = s.cfg.Timeout
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func expiryMessage(timeout time.Duration) string {
	return fmt.Sprintf("Your conversation was closed after %d minutes of inactivity.\n\n"+
		"Send a new message to start over, or use /models to pick a different assistant.",
		int(timeout.Minutes()))
}
