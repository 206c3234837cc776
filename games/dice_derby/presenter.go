package dice_derby

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const presentTimeout = 5 * time.Second

// presenter owns one race board message. Frames go through a one-slot mailbox
// so a slow messenger only ever costs skipped frames, never a delayed tick.
type presenter struct {
	messenger Messenger
	venue     Venue
	raceID    string

	mu         sync.Mutex
	latest     *View
	closing    bool
	threadName string
	messageID  string

	wake chan struct{}
	done chan struct{}
}

func newPresenter(m Messenger, venue Venue, raceID string) *presenter {
	p := &presenter{
		messenger: m,
		venue:     venue,
		raceID:    raceID,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go p.loop()
	return p
}

// push replaces any frame not yet rendered
func (p *presenter) push(v View) {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	p.latest = &v
	p.mu.Unlock()
	p.signal()
}

// finish queues the last frame. It is always rendered. A non-empty threadName
// opens a discussion thread on the board afterwards.
func (p *presenter) finish(v View, threadName string) {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	p.latest = &v
	p.closing = true
	p.threadName = threadName
	p.mu.Unlock()
	p.signal()
}

// Done is closed once the final frame has been handled
func (p *presenter) Done() <-chan struct{} {
	return p.done
}

func (p *presenter) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *presenter) loop() {
	defer close(p.done)
	for range p.wake {
		p.mu.Lock()
		v := p.latest
		p.latest = nil
		closing := p.closing
		p.mu.Unlock()

		if v != nil {
			p.render(*v)
		}

		if closing {
			p.mu.Lock()
			pendingFinal := p.latest != nil
			p.mu.Unlock()
			if pendingFinal {
				continue
			}
			p.openThread()
			return
		}
	}
}

func (p *presenter) render(v View) {
	ctx, cancel := context.WithTimeout(context.Background(), presentTimeout)
	defer cancel()

	fields := log.Fields{"race_id": p.raceID, "channel_id": p.venue.ChannelID, "view": v.Kind}
	if p.messageID == "" {
		id, err := p.messenger.Post(ctx, p.venue.ChannelID, v)
		if err != nil {
			log.WithFields(fields).WithError(err).Warn("Failed to post race board")
			return
		}
		p.messageID = id
		return
	}
	if err := p.messenger.Edit(ctx, p.venue.ChannelID, p.messageID, v); err != nil {
		log.WithFields(fields).WithError(err).Warn("Failed to update race board")
	}
}

func (p *presenter) openThread() {
	if p.threadName == "" || p.messageID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presentTimeout)
	defer cancel()
	if _, err := p.messenger.StartThread(ctx, p.venue.ChannelID, p.messageID, p.threadName); err != nil {
		log.WithFields(log.Fields{"race_id": p.raceID}).WithError(err).Warn("Failed to start race thread")
	}
}
