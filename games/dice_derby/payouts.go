package dice_derby

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dice-derby/models"

	log "github.com/sirupsen/logrus"
)

// DefaultPayoutDelay spaces out credits to the message-based economy
const DefaultPayoutDelay = 850 * time.Millisecond

// Freeze is the global payout kill switch
type Freeze struct {
	frozen atomic.Bool
}

// Set turns the freeze on or off
func (f *Freeze) Set(frozen bool) {
	f.frozen.Store(frozen)
}

// Frozen reports whether payouts are frozen
func (f *Freeze) Frozen() bool {
	return f.frozen.Load()
}

// DispatcherStats counts what the dispatcher has done since start
type DispatcherStats struct {
	Sent    int64
	Skipped int64
	Failed  int64
	Dropped int64
}

// Dispatcher sends payouts one at a time per guild, in the order they were
// enqueued, with a fixed delay before each send. Failures are logged and dropped.
type Dispatcher struct {
	credit Crediter
	freeze *Freeze
	delay  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[string]*guildQueue
	closed bool

	sent, skipped, failed, dropped atomic.Int64
}

type guildQueue struct {
	guildID string
	mu      sync.Mutex
	pending []models.PayoutTask
	wake    chan struct{}
}

func (q *guildQueue) push(tasks ...models.PayoutTask) {
	q.mu.Lock()
	q.pending = append(q.pending, tasks...)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *guildQueue) pop() (models.PayoutTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return models.PayoutTask{}, false
	}
	task := q.pending[0]
	q.pending[0] = models.PayoutTask{}
	q.pending = q.pending[1:]
	return task, true
}

func (q *guildQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// NewDispatcher creates a dispatcher. A negative delay means the default.
func NewDispatcher(credit Crediter, freeze *Freeze, delay time.Duration) *Dispatcher {
	if freeze == nil {
		freeze = &Freeze{}
	}
	if delay < 0 {
		delay = DefaultPayoutDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		credit: credit,
		freeze: freeze,
		delay:  delay,
		ctx:    ctx,
		cancel: cancel,
		stop:   make(chan struct{}),
		queues: make(map[string]*guildQueue),
	}
}

// Enqueue appends tasks to their guilds' queues and returns immediately
func (d *Dispatcher) Enqueue(tasks ...models.PayoutTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrEngineClosed
	}

	now := time.Now()
	for _, task := range tasks {
		task.EnqueuedAt = now
		q, ok := d.queues[task.GuildID]
		if !ok {
			q = &guildQueue{guildID: task.GuildID, wake: make(chan struct{}, 1)}
			d.queues[task.GuildID] = q
			d.wg.Add(1)
			go d.worker(q)
		}
		q.push(task)
	}
	return nil
}

// Pending returns how many tasks are waiting for a guild
func (d *Dispatcher) Pending(guildID string) int {
	d.mu.Lock()
	q, ok := d.queues[guildID]
	d.mu.Unlock()
	if !ok {
		return 0
	}
	return q.len()
}

// Stats returns the dispatcher counters
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Sent:    d.sent.Load(),
		Skipped: d.skipped.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}

// Close stops intake and waits for the queues to drain. If ctx expires first,
// in-flight sends are cancelled and whatever is left is dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.stop)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(q *guildQueue) {
	defer d.wg.Done()
	for {
		task, ok := q.pop()
		if ok {
			d.send(task)
			continue
		}
		select {
		case <-q.wake:
		case <-d.stop:
			// drain whatever arrived before close, then exit
			for {
				task, ok := q.pop()
				if !ok {
					return
				}
				d.send(task)
			}
		}
	}
}

func (d *Dispatcher) send(task models.PayoutTask) {
	fields := log.Fields{
		"race_id":   task.RaceID,
		"guild_id":  task.GuildID,
		"player_id": task.PlayerID,
		"amount":    task.Amount,
	}

	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		select {
		case <-timer.C:
		case <-d.ctx.Done():
			timer.Stop()
			d.dropped.Add(1)
			log.WithFields(fields).Warn("Payout dropped during shutdown")
			return
		}
	}

	if d.ctx.Err() != nil {
		d.dropped.Add(1)
		log.WithFields(fields).Warn("Payout dropped during shutdown")
		return
	}

	// freeze is checked at send time, so tasks queued before a freeze are skipped too
	if d.freeze.Frozen() {
		d.skipped.Add(1)
		log.WithFields(fields).Info("Payouts frozen, skipping credit")
		return
	}

	if err := d.credit.Credit(d.ctx, task); err != nil {
		d.failed.Add(1)
		log.WithFields(fields).WithError(err).Error("Payout credit failed")
		return
	}
	d.sent.Add(1)
	log.WithFields(fields).Debug("Payout credited")
}
