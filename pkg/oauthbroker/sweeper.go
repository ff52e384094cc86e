package oauthbroker

import (
	"context"
	"time"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/store"
	"github.com/robfig/cron/v3"
)

const (
	expiringWithin = 30 * time.Minute
	purgeOlderThan = 30 * 24 * time.Hour
)

// Sweeper runs the two background schedules §4.9 names: an hourly refresh of
// tokens expiring soon, and a daily 02:00-local purge of tokens long expired.
// Grounded on the rocketship-ai-rocketship project-schedules store's use of
// robfig/cron/v3 to evaluate cron expressions against a configured timezone.
type Sweeper struct {
	broker *Broker
	oauth  store.UserOAuthRepository
	cron   *cron.Cron
	logger *logx.Logger
}

func NewSweeper(broker *Broker, oauthRepo store.UserOAuthRepository, tz string, logger *logx.Logger) (*Sweeper, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	s := &Sweeper{
		broker: broker,
		oauth:  oauthRepo,
		cron:   cron.New(cron.WithLocation(loc)),
		logger: logger,
	}
	if _, err := s.cron.AddFunc("@hourly", s.runRefreshSweep); err != nil {
		return nil, errx.Wrap(err, "failed to schedule oauth refresh sweep", errx.TypeInternal)
	}
	if _, err := s.cron.AddFunc("0 2 * * *", s.runPurge); err != nil {
		return nil, errx.Wrap(err, "failed to schedule oauth purge", errx.TypeInternal)
	}
	return s, nil
}

func (s *Sweeper) Start() { s.cron.Start() }
func (s *Sweeper) Stop()  { <-s.cron.Stop().Done() }

func (s *Sweeper) runRefreshSweep() {
	ctx := context.Background()
	expiring, err := s.oauth.FindExpiringBefore(ctx, time.Now().Add(expiringWithin))
	if err != nil {
		s.logger.WithError(err).Error("oauth sweep: failed to list expiring credentials")
		return
	}
	for _, row := range expiring {
		if _, err := s.broker.Refresh(ctx, row.UserID, row.ProviderID, true); err != nil {
			s.logger.WithField("user_id", row.UserID.String()).
				WithField("provider_id", row.ProviderID).
				WithError(err).
				Warn("oauth sweep: refresh failed")
		}
	}
}

func (s *Sweeper) runPurge() {
	ctx := context.Background()
	n, err := s.oauth.DeleteExpiredBefore(ctx, time.Now().Add(-purgeOlderThan))
	if err != nil {
		s.logger.WithError(err).Error("oauth purge: failed")
		return
	}
	s.logger.WithField("count", n).Info("oauth purge: removed expired credentials")
}
