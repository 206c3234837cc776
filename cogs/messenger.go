package cogs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dice-derby/games/dice_derby"

	"github.com/bwmarrin/discordgo"
	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MessengerMetrics tracks Discord API calls made for race boards
type MessengerMetrics struct {
	Posts   int64
	Edits   int64
	Threads int64
	Failed  int64
}

// DiscordMessenger posts and edits race boards. Edits are rate limited per
// channel so a busy channel doesn't hit Discord's edit limits.
type DiscordMessenger struct {
	session *discordgo.Session
	limit   rate.Limit
	burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	posts, edits, threads, failed atomic.Int64
}

// NewDiscordMessenger creates a messenger allowing editsPerSecond board updates per channel
func NewDiscordMessenger(session *discordgo.Session, editsPerSecond float64) *DiscordMessenger {
	return &DiscordMessenger{
		session:  session,
		limit:    rate.Limit(editsPerSecond),
		burst:    2,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (m *DiscordMessenger) limiter(channelID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(m.limit, m.burst)
		m.limiters[channelID] = l
	}
	return l
}

// Post sends a new board message and returns its id
func (m *DiscordMessenger) Post(ctx context.Context, channelID string, v dice_derby.View) (string, error) {
	if err := m.limiter(channelID).Wait(ctx); err != nil {
		return "", err
	}
	msg, err := m.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{RenderView(v)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		m.failed.Add(1)
		return "", fmt.Errorf("failed to post race board: %w", err)
	}
	m.posts.Add(1)
	return msg.ID, nil
}

// Edit replaces the board embed
func (m *DiscordMessenger) Edit(ctx context.Context, channelID, messageID string, v dice_derby.View) error {
	if err := m.limiter(channelID).Wait(ctx); err != nil {
		return err
	}
	embeds := []*discordgo.MessageEmbed{RenderView(v)}
	_, err := m.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel: channelID,
		ID:      messageID,
		Embeds:  &embeds,
	}, discordgo.WithContext(ctx))
	if err != nil {
		m.failed.Add(1)
		return fmt.Errorf("failed to edit race board: %w", err)
	}
	m.edits.Add(1)
	return nil
}

// StartThread opens a discussion thread on a board message
func (m *DiscordMessenger) StartThread(ctx context.Context, channelID, messageID, name string) (string, error) {
	ch, err := m.session.MessageThreadStart(channelID, messageID, ThreadName(name), 1440, discordgo.WithContext(ctx))
	if err != nil {
		m.failed.Add(1)
		return "", fmt.Errorf("failed to start thread: %w", err)
	}
	m.threads.Add(1)
	return ch.ID, nil
}

// ThreadName turns a free-form title into a Discord-safe thread name
func ThreadName(title string) string {
	name := slug.Make(title)
	if name == "" {
		name = "race-results"
	}
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

// Metrics returns the call counters
func (m *DiscordMessenger) Metrics() MessengerMetrics {
	return MessengerMetrics{
		Posts:   m.posts.Load(),
		Edits:   m.edits.Load(),
		Threads: m.threads.Load(),
		Failed:  m.failed.Load(),
	}
}

// LogMetrics periodically logs the call counters until ctx is done
func (m *DiscordMessenger) LogMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics := m.Metrics()
			log.WithFields(log.Fields{
				"posts":   metrics.Posts,
				"edits":   metrics.Edits,
				"threads": metrics.Threads,
				"failed":  metrics.Failed,
			}).Debug("Race board metrics")
		}
	}
}
