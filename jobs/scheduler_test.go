package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSeason struct {
	resets atomic.Int32
	pruned int
}

func (f *fakeSeason) ResetSeason(context.Context) error {
	f.resets.Add(1)
	return nil
}

func (f *fakeSeason) PruneCooldowns() int { return f.pruned }

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	if _, err := NewScheduler(&fakeSeason{}, "every tuesday", "UTC"); err == nil {
		t.Error("bad cron schedule accepted")
	}
}

func TestNewSchedulerFallsBackToUTC(t *testing.T) {
	s, err := NewScheduler(&fakeSeason{}, "0 0 1 * *", "Nowhere/Special")
	if err != nil {
		t.Fatal(err)
	}
	if s.loc != time.UTC {
		t.Errorf("loc = %v", s.loc)
	}
}

func TestNextReset(t *testing.T) {
	s, err := NewScheduler(&fakeSeason{}, "0 0 1 * *", "UTC")
	if err != nil {
		t.Fatal(err)
	}
	next := s.NextReset()
	if next.Day() != 1 || next.Hour() != 0 || !next.After(time.Now()) {
		t.Errorf("NextReset before Start = %v", next)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if got := s.NextReset(); !got.Equal(next) {
		t.Errorf("NextReset after Start = %v, want %v", got, next)
	}
}

func TestSweepRunsSweepers(t *testing.T) {
	s, err := NewScheduler(&fakeSeason{pruned: 2}, "0 0 1 * *", "UTC")
	if err != nil {
		t.Fatal(err)
	}
	calls := map[string]int{}
	s.AddSweeper("a", func() int { calls["a"]++; return 1 })
	s.AddSweeper("b", func() int { calls["b"]++; return 0 })

	s.sweep()
	s.sweep()
	if calls["a"] != 2 || calls["b"] != 2 {
		t.Errorf("calls = %v", calls)
	}
}
