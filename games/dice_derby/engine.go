package dice_derby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dice-derby/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// settleTimeout bounds the store and audit work done after a race ends
const settleTimeout = 15 * time.Second

// Settings are the engine's tunables
type Settings struct {
	TickInterval     time.Duration
	MaxTicks         int
	Cooldown         time.Duration
	LobbyTimeout     time.Duration
	MinPartyEntrants int
	DailyTokens      int64
	DailyCooldown    time.Duration
}

// DefaultSettings matches the production deployment
func DefaultSettings() Settings {
	return Settings{
		TickInterval:     1400 * time.Millisecond,
		MaxTicks:         DefaultMaxTicks,
		Cooldown:         15 * time.Second,
		LobbyTimeout:     2 * time.Minute,
		MinPartyEntrants: 2,
		DailyTokens:      3,
		DailyCooldown:    24 * time.Hour,
	}
}

// PayoutQueue accepts payouts for later delivery
type PayoutQueue interface {
	Enqueue(tasks ...models.PayoutTask) error
}

// Options wires an engine to its collaborators. Store and Payouts are required.
type Options struct {
	Settings  Settings
	Store     Store
	Messenger Messenger
	Audit     AuditSink
	Payouts   PayoutQueue
	Freeze    *Freeze
}

// Engine runs races. Each race ticks on its own goroutine; the engine only
// tracks which players are busy and which lobbies are open.
type Engine struct {
	settings  Settings
	store     Store
	messenger Messenger
	audit     AuditSink
	payouts   PayoutQueue
	freeze    *Freeze
	outcomes  *OutcomeEngine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	busy      map[string]string // player -> race or party id
	cooldowns map[string]time.Time
	parties   map[string]*Party
	races     map[string]*RaceHandle
	closed    bool

	now     func() time.Time
	newSeed func() uint32
	newID   func() string
}

// NewEngine creates a race engine
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("race engine needs a store")
	}
	s := opts.Settings
	if s.TickInterval <= 0 {
		s.TickInterval = time.Millisecond
	}
	if s.MaxTicks <= 0 {
		s.MaxTicks = DefaultMaxTicks
	}
	if s.MinPartyEntrants < 1 {
		s.MinPartyEntrants = 1
	}
	if s.MinPartyEntrants > len(Colours) {
		return nil, fmt.Errorf("party minimum of %d exceeds the %d competitors", s.MinPartyEntrants, len(Colours))
	}

	if opts.Messenger == nil {
		opts.Messenger = nopMessenger{}
	}
	if opts.Audit == nil {
		opts.Audit = nopAudit{}
	}
	if opts.Freeze == nil {
		opts.Freeze = &Freeze{}
	}
	if opts.Payouts == nil {
		return nil, errors.New("race engine needs a payout queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		settings:  s,
		store:     opts.Store,
		messenger: opts.Messenger,
		audit:     opts.Audit,
		payouts:   opts.Payouts,
		freeze:    opts.Freeze,
		outcomes:  NewOutcomeEngine(opts.Store, opts.Freeze),
		ctx:       ctx,
		cancel:    cancel,
		busy:      make(map[string]string),
		cooldowns: make(map[string]time.Time),
		parties:   make(map[string]*Party),
		races:     make(map[string]*RaceHandle),
		now:       time.Now,
		newSeed:   NewSeed,
		newID:     uuid.NewString,
	}, nil
}

// RaceHandle follows one running race
type RaceHandle struct {
	ID       string
	Seed     uint32
	Tier     Tier
	Mode     Mode
	Venue    Venue
	Entrants []Entrant
	PartyID  string

	race      *Race
	presenter *presenter
	done      chan struct{}

	settlement *Settlement
	err        error
}

// Done is closed once the race has been settled or abandoned and its players released
func (h *RaceHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the race is over
func (h *RaceHandle) Wait(ctx context.Context) (*Settlement, error) {
	select {
	case <-h.done:
		return h.settlement, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot copies the live race state
func (h *RaceHandle) Snapshot() RaceSnapshot {
	return h.race.Snapshot()
}

// StartSoloRace debits the entry fee and starts a race where the player backs one colour
func (e *Engine) StartSoloRace(ctx context.Context, venue Venue, player Player, colourKey, tierKey string) (*RaceHandle, error) {
	tier, err := LookupTier(tierKey)
	if err != nil {
		return nil, err
	}
	colour, err := LookupColour(colourKey)
	if err != nil {
		return nil, err
	}

	raceID := e.newID()
	if err := e.reserve(player.ID, raceID, true); err != nil {
		return nil, err
	}

	stats, err := e.store.GetStats(ctx, player.ID)
	if err != nil {
		e.unreserve(player.ID, raceID)
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	if err := e.debit(ctx, player.ID, tier); err != nil {
		e.unreserve(player.ID, raceID)
		return nil, err
	}

	e.mu.Lock()
	e.cooldowns[player.ID] = e.now().Add(e.settings.Cooldown)
	e.mu.Unlock()

	entrants := []Entrant{{Player: player, Colour: colour}}
	backers := map[Colour]Backer{colour: {PlayerID: player.ID, WinStreak: stats.WinStreak}}
	h, err := e.launch(raceID, tier, ModeSolo, venue, entrants, backers, "")
	if err != nil {
		e.refund(ctx, player.ID, tier, true)
		e.mu.Lock()
		delete(e.cooldowns, player.ID)
		e.mu.Unlock()
		e.unreserve(player.ID, raceID)
		return nil, err
	}
	return h, nil
}

// reserve marks a player busy. owner may re-reserve its own id, which lets a
// lobby host join their own party.
func (e *Engine) reserve(playerID, owner string, checkCooldown bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if current, ok := e.busy[playerID]; ok && current != owner {
		return reject(ErrAlreadyRacing, "finish your current race first")
	}
	if checkCooldown {
		if until, ok := e.cooldowns[playerID]; ok {
			if remaining := until.Sub(e.now()); remaining > 0 {
				return rejectRetry(ErrCooldownActive, remaining)
			}
		}
	}
	e.busy[playerID] = owner
	return nil
}

func (e *Engine) unreserve(playerID, owner string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[playerID] == owner {
		delete(e.busy, playerID)
	}
}

// debit takes the entry fee and counts the race. The balance is checked inside
// the update, so a refusal writes nothing.
func (e *Engine) debit(ctx context.Context, playerID string, tier Tier) error {
	_, err := e.store.UpdateTokens(ctx, playerID, func(b *models.TokenBalance) error {
		if b.Tokens < tier.Cost {
			return reject(ErrInsufficientTokens, fmt.Sprintf("%s costs %d, you have %d", tier.Name, tier.Cost, b.Tokens))
		}
		b.Tokens -= tier.Cost
		return nil
	})
	if err != nil {
		if IsEntryRejected(err) {
			return err
		}
		return fmt.Errorf("failed to debit entry: %w", err)
	}

	if _, err := e.store.UpdateStats(ctx, playerID, func(s *models.PlayerStats) error {
		s.Races++
		s.UpdatedAt = e.now()
		return nil
	}); err != nil {
		e.refund(ctx, playerID, tier, false)
		return fmt.Errorf("failed to count race entry: %w", err)
	}
	return nil
}

// refund returns an entry fee, and the race count too when the race never ran
func (e *Engine) refund(ctx context.Context, playerID string, tier Tier, uncount bool) {
	fields := log.Fields{"player_id": playerID, "tier": tier.Key}
	if _, err := e.store.UpdateTokens(ctx, playerID, func(b *models.TokenBalance) error {
		b.Tokens += tier.Cost
		return nil
	}); err != nil {
		log.WithFields(fields).WithError(err).Error("Failed to refund entry")
		return
	}
	if !uncount {
		return
	}
	if _, err := e.store.UpdateStats(ctx, playerID, func(s *models.PlayerStats) error {
		if s.Races > 0 {
			s.Races--
		}
		return nil
	}); err != nil {
		log.WithFields(fields).WithError(err).Warn("Failed to uncount refunded race")
	}
}

// launch registers a race and starts ticking it. It fails only when the engine
// closed after the entrants were reserved; nothing is registered then.
func (e *Engine) launch(raceID string, tier Tier, mode Mode, venue Venue, entrants []Entrant, backers map[Colour]Backer, partyID string) (*RaceHandle, error) {
	seed := e.newSeed()
	race := NewRace(raceID, seed, tier, backers)
	race.MaxTicks = e.settings.MaxTicks

	h := &RaceHandle{
		ID:       raceID,
		Seed:     seed,
		Tier:     tier,
		Mode:     mode,
		Venue:    venue,
		Entrants: entrants,
		PartyID:  partyID,
		race:     race,
		done:     make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.races[raceID] = h
	for _, en := range entrants {
		e.busy[en.ID] = raceID
	}
	// counted under mu so Close can't finish waiting before this race exists
	e.wg.Add(1)
	e.mu.Unlock()
	h.presenter = newPresenter(e.messenger, venue, raceID)

	participants := make([]models.AuditParticipant, 0, len(entrants))
	for _, en := range entrants {
		participants = append(participants, models.AuditParticipant{
			PlayerID:   en.ID,
			Competitor: string(en.Colour),
			WinStreak:  backers[en.Colour].WinStreak,
		})
	}
	e.record(models.AuditRecord{
		Kind:         models.AuditRaceStart,
		RaceID:       raceID,
		Seed:         seed,
		Tier:         string(tier.Key),
		Mode:         string(mode),
		GuildID:      venue.GuildID,
		MaxTicks:     race.MaxTicks,
		Participants: participants,
		At:           e.now(),
	})

	log.WithFields(log.Fields{
		"race_id":  raceID,
		"guild_id": venue.GuildID,
		"tier":     tier.Key,
		"mode":     mode,
		"entrants": len(entrants),
	}).Info("Race started")

	go e.run(h)
	return h, nil
}

// run ticks one race to completion. The deferred release always runs, so a
// failed race never leaves its players locked out.
func (e *Engine) run(h *RaceHandle) {
	defer e.wg.Done()
	defer close(h.done)
	defer e.release(h)
	defer func() {
		if p := recover(); p != nil {
			e.abandon(h, fmt.Errorf("%w: %v", ErrSimulationFault, p))
		}
	}()

	ticker := time.NewTicker(e.settings.TickInterval)
	defer ticker.Stop()

	h.presenter.push(e.raceView(h, ViewRace))

	for {
		select {
		case <-e.ctx.Done():
			e.abandon(h, fmt.Errorf("%w: engine stopped mid-race", ErrSimulationFault))
			return
		case <-ticker.C:
		}

		done, err := h.race.Tick()
		if err != nil {
			e.abandon(h, err)
			return
		}
		if done {
			e.complete(h)
			return
		}
		h.presenter.push(e.raceView(h, ViewRace))
	}
}

func (e *Engine) raceView(h *RaceHandle, kind ViewKind) View {
	snap := h.race.Snapshot()
	return View{Kind: kind, Mode: h.Mode, Venue: h.Venue, Race: &snap, Entrants: h.Entrants}
}

// complete settles a finalized race. Every entrant's stats are written before
// any payout is queued.
func (e *Engine) complete(h *RaceHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	result, ok := h.race.Result()
	if !ok {
		e.abandon(h, fmt.Errorf("%w: finalized without a result", ErrSimulationFault))
		return
	}

	settlement, err := e.outcomes.Settle(ctx, RaceInfo{ID: h.ID, Seed: h.Seed, Tier: h.Tier, Mode: h.Mode, Venue: h.Venue}, result, h.Entrants)
	if err != nil {
		log.WithFields(log.Fields{"race_id": h.ID}).WithError(err).Error("Race settled with store errors")
	}
	h.settlement = settlement

	e.record(models.AuditRecord{
		Kind:        models.AuditRaceFinish,
		RaceID:      h.ID,
		Seed:        h.Seed,
		Tier:        string(h.Tier.Key),
		Mode:        string(h.Mode),
		GuildID:     h.Venue.GuildID,
		Placements:  AuditPlacements(result),
		Payouts:     settlement.Payouts,
		PhotoFinish: result.PhotoFinish,
		Frozen:      settlement.Frozen,
		At:          e.now(),
	})

	view := e.raceView(h, ViewResult)
	view.Settlement = settlement
	threadName := ""
	if h.Mode == ModeParty {
		threadName = fmt.Sprintf("%s party race %s", h.Tier.Name, shortID(h.ID))
	}
	h.presenter.finish(view, threadName)

	if len(settlement.Payouts) > 0 {
		if err := e.payouts.Enqueue(settlement.Payouts...); err != nil {
			log.WithFields(log.Fields{"race_id": h.ID}).WithError(err).Error("Failed to queue payouts")
		}
	}

	log.WithFields(log.Fields{
		"race_id":      h.ID,
		"winner":       result.Winner(),
		"ticks":        result.Ticks,
		"photo_finish": result.PhotoFinish,
		"payouts":      len(settlement.Payouts),
	}).Info("Race finished")
}

// abandon fails a race: no payouts, entry fees refunded
func (e *Engine) abandon(h *RaceHandle, cause error) {
	if h.err != nil {
		return
	}
	h.err = cause
	log.WithFields(log.Fields{"race_id": h.ID, "seed": h.Seed}).WithError(cause).Error("Race abandoned")

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	for _, en := range h.Entrants {
		e.refund(ctx, en.ID, h.Tier, true)
	}

	e.record(models.AuditRecord{
		Kind:    models.AuditRaceFailed,
		RaceID:  h.ID,
		Seed:    h.Seed,
		Tier:    string(h.Tier.Key),
		Mode:    string(h.Mode),
		GuildID: h.Venue.GuildID,
		Error:   cause.Error(),
		At:      e.now(),
	})

	view := e.raceView(h, ViewFailed)
	view.Note = "Something went wrong mid-race. Entry fees have been refunded."
	h.presenter.finish(view, "")
}

func (e *Engine) release(h *RaceHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.races, h.ID)
	for _, en := range h.Entrants {
		if e.busy[en.ID] == h.ID {
			delete(e.busy, en.ID)
		}
	}
	if h.PartyID != "" {
		if p, ok := e.parties[h.PartyID]; ok {
			delete(e.parties, h.PartyID)
			if e.busy[p.Host.ID] == h.PartyID {
				delete(e.busy, p.Host.ID)
			}
		}
	}
}

// record writes an audit record without holding up the race
func (e *Engine) record(rec models.AuditRecord) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()
		if err := e.audit.Record(ctx, rec); err != nil {
			log.WithFields(log.Fields{"race_id": rec.RaceID, "kind": rec.Kind}).WithError(err).Warn("Failed to write audit record")
		}
	}()
}

// ActiveRaces returns how many races are ticking
func (e *Engine) ActiveRaces() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.races)
}

// PruneCooldowns forgets expired cooldowns and returns how many were removed
func (e *Engine) PruneCooldowns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	removed := 0
	for id, until := range e.cooldowns {
		if !until.After(now) {
			delete(e.cooldowns, id)
			removed++
		}
	}
	return removed
}

// Close stops new entries, cancels open lobbies and waits for running races.
// Races still running when ctx expires are abandoned and refunded.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	lobbies := make([]string, 0, len(e.parties))
	for id := range e.parties {
		lobbies = append(lobbies, id)
	}
	e.mu.Unlock()

	for _, id := range lobbies {
		if err := e.CancelParty(ctx, id, "the bot is restarting"); err != nil && !errors.Is(err, ErrLobbyClosed) && !errors.Is(err, ErrPartyNotFound) {
			log.WithFields(log.Fields{"party_id": id}).WithError(err).Warn("Failed to cancel lobby on shutdown")
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
