package assessment

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
)

const (
	defaultSweepInterval = time.Minute
	defaultStaleAfter    = 2 * time.Minute
)

// Sweeper completes assessments left in processing, for example when the
// client that approved them never asked for processing.
type Sweeper struct {
	svc        *Service
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewSweeper constructs a Sweeper.
func NewSweeper(svc *Service, cfg config.AssessmentConfig) *Sweeper {
	if svc == nil {
		return nil
	}
	s := &Sweeper{svc: svc, interval: cfg.SweepInterval, staleAfter: cfg.StaleAfter, now: time.Now}
	if s.interval <= 0 {
		s.interval = defaultSweepInterval
	}
	if s.staleAfter <= 0 {
		s.staleAfter = defaultStaleAfter
	}
	return s
}

// Start runs the sweep loop in the background until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("assessment sweeper started (interval=%s, stale-after=%s)", s.interval, s.staleAfter)
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.WithError(err).Warn("assessment sweeper: sweep failed")
			}
		}
	}
}

// SweepOnce processes every stale assessment and returns how many completed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s == nil || s.svc == nil {
		return 0, nil
	}
	clock := s.now
	if clock == nil {
		clock = time.Now
	}
	ids, err := s.svc.staleProcessing(ctx, clock().UTC().Add(-s.staleAfter))
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		_, source, errProcess := s.svc.Process(ctx, id)
		switch {
		case errProcess == nil:
			completed++
			log.WithFields(log.Fields{"assessment_id": id, "source": source}).Info("assessment sweeper: completed stale assessment")
		case errors.Is(errProcess, apperr.ErrAlreadyProcessed):
			log.WithField("assessment_id", id).Debug("assessment sweeper: assessment completed elsewhere")
		default:
			log.WithError(errProcess).WithField("assessment_id", id).Warn("assessment sweeper: process failed")
		}
	}
	return completed, nil
}
