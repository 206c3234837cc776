// Package jobs runs the bot's background cron jobs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Season is what the scheduler maintains
type Season interface {
	ResetSeason(ctx context.Context) error
	PruneCooldowns() int
}

// Scheduler runs the season reset and housekeeping jobs
type Scheduler struct {
	cron    *cron.Cron
	season  Season
	spec    string
	loc     *time.Location
	resetID cron.EntryID

	sweepers map[string]func() int
}

// NewScheduler creates a scheduler. resetSpec is a standard five-field cron expression.
func NewScheduler(season Season, resetSpec, timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.WithError(err).Warnf("Unknown timezone %q, using UTC", timezone)
		loc = time.UTC
	}
	if _, err := cron.ParseStandard(resetSpec); err != nil {
		return nil, fmt.Errorf("invalid season reset schedule %q: %w", resetSpec, err)
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		season: season,
		spec:   resetSpec,
		loc:    loc,
	}, nil
}

// AddSweeper registers an extra cleanup that runs with the cooldown prune.
// fn returns how many entries it removed. Call before Start.
func (s *Scheduler) AddSweeper(name string, fn func() int) {
	if s.sweepers == nil {
		s.sweepers = make(map[string]func() int)
	}
	s.sweepers[name] = fn
}

func (s *Scheduler) sweep() {
	if n := s.season.PruneCooldowns(); n > 0 {
		log.WithField("removed", n).Debug("[CRON] Pruned race cooldowns")
	}
	for name, fn := range s.sweepers {
		if n := fn(); n > 0 {
			log.WithFields(log.Fields{"sweeper": name, "removed": n}).Debug("[CRON] Sweep finished")
		}
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.spec, func() { s.resetSeason(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule season reset: %w", err)
	}
	s.resetID = id

	if _, err := s.cron.AddFunc("@every 10m", s.sweep); err != nil {
		return fmt.Errorf("failed to schedule cooldown cleanup: %w", err)
	}

	s.cron.Start()
	log.WithField("season_reset", s.spec).Info("Scheduler started")
	return nil
}

func (s *Scheduler) resetSeason(ctx context.Context) {
	log.Info("[CRON] Season reset")
	if err := s.season.ResetSeason(ctx); err != nil {
		log.WithError(err).Error("[CRON] Season reset failed")
	}
}

// NextReset returns when the next season reset will run
func (s *Scheduler) NextReset() time.Time {
	if next := s.cron.Entry(s.resetID).Next; !next.IsZero() {
		return next
	}
	sched, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now().In(s.loc))
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Scheduler stopped")
}
