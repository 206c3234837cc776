package dice_derby

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Party is a multi-player lobby. Its fields are guarded by mu; lock order is
// party.mu before engine.mu.
type Party struct {
	ID        string
	Host      Player
	Venue     Venue
	Tier      Tier
	CreatedAt time.Time
	ExpiresAt time.Time

	mu       sync.Mutex
	state    RaceState
	entrants []Entrant
	timer    *time.Timer
	race     *RaceHandle
}

// PartySnapshot is a read-only copy of a lobby
type PartySnapshot struct {
	ID        string
	Host      Player
	Venue     Venue
	Tier      Tier
	State     RaceState
	Entrants  []Entrant
	Open      []Colour
	ExpiresAt time.Time
	RaceID    string
}

// Taken reports which player rides a colour, if any
func (p PartySnapshot) Taken(c Colour) (Entrant, bool) {
	for _, en := range p.Entrants {
		if en.Colour == c {
			return en, true
		}
	}
	return Entrant{}, false
}

func (p *Party) snapshot() PartySnapshot {
	snap := PartySnapshot{
		ID:        p.ID,
		Host:      p.Host,
		Venue:     p.Venue,
		Tier:      p.Tier,
		State:     p.state,
		Entrants:  append([]Entrant(nil), p.entrants...),
		ExpiresAt: p.ExpiresAt,
	}
	if p.race != nil {
		snap.RaceID = p.race.ID
		select {
		case <-p.race.Done():
			snap.State = StateFinalized
			if p.race.err != nil {
				snap.State = StateFailed
			}
		default:
		}
	}
	for _, c := range Colours {
		if _, taken := snap.Taken(c); !taken {
			snap.Open = append(snap.Open, c)
		}
	}
	return snap
}

func (p *Party) hasEntrant(playerID string) bool {
	for _, en := range p.entrants {
		if en.ID == playerID {
			return true
		}
	}
	return false
}

// CreatePartyLobby opens a lobby. The host is marked busy but pays nothing
// until they join with a colour.
func (e *Engine) CreatePartyLobby(ctx context.Context, venue Venue, host Player, tierKey string) (PartySnapshot, error) {
	tier, err := LookupTier(tierKey)
	if err != nil {
		return PartySnapshot{}, err
	}

	partyID := e.newID()
	if err := e.reserve(host.ID, partyID, false); err != nil {
		return PartySnapshot{}, err
	}

	now := e.now()
	p := &Party{
		ID:        partyID,
		Host:      host,
		Venue:     venue,
		Tier:      tier,
		CreatedAt: now,
		ExpiresAt: now.Add(e.settings.LobbyTimeout),
		state:     StateLobby,
	}

	e.mu.Lock()
	e.parties[partyID] = p
	e.mu.Unlock()

	if e.settings.LobbyTimeout > 0 {
		p.mu.Lock()
		p.timer = time.AfterFunc(e.settings.LobbyTimeout, func() { e.expire(partyID) })
		p.mu.Unlock()
	}

	log.WithFields(log.Fields{
		"party_id": partyID,
		"guild_id": venue.GuildID,
		"host_id":  host.ID,
		"tier":     tier.Key,
	}).Info("Party lobby opened")

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

// Party returns a lobby snapshot
func (e *Engine) Party(partyID string) (PartySnapshot, error) {
	p, err := e.party(partyID)
	if err != nil {
		return PartySnapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

func (e *Engine) party(partyID string) (*Party, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.parties[partyID]
	if !ok {
		return nil, reject(ErrPartyNotFound, "that lobby has closed")
	}
	return p, nil
}

// JoinParty debits the entry fee and seats the player on a colour
func (e *Engine) JoinParty(ctx context.Context, partyID string, player Player, colourKey string) (PartySnapshot, error) {
	colour, err := LookupColour(colourKey)
	if err != nil {
		return PartySnapshot{}, err
	}
	p, err := e.party(partyID)
	if err != nil {
		return PartySnapshot{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateLobby {
		return PartySnapshot{}, reject(ErrLobbyClosed, "the race has already started")
	}
	if p.hasEntrant(player.ID) {
		return PartySnapshot{}, reject(ErrAlreadyRacing, "you're already in this lobby")
	}
	if len(p.entrants) >= len(Colours) {
		return PartySnapshot{}, reject(ErrLobbyFull, "")
	}
	for _, en := range p.entrants {
		if en.Colour == colour {
			return PartySnapshot{}, reject(ErrColourTaken, fmt.Sprintf("%s is riding %s", en.Name, colour))
		}
	}

	if err := e.reserve(player.ID, partyID, false); err != nil {
		return PartySnapshot{}, err
	}
	if err := e.debit(ctx, player.ID, p.Tier); err != nil {
		if player.ID != p.Host.ID {
			e.unreserve(player.ID, partyID)
		}
		return PartySnapshot{}, err
	}

	p.entrants = append(p.entrants, Entrant{Player: player, Colour: colour})
	log.WithFields(log.Fields{
		"party_id":  partyID,
		"player_id": player.ID,
		"colour":    colour,
	}).Info("Player joined party")

	return p.snapshot(), nil
}

// StartPartyRace moves a lobby to RUNNING
func (e *Engine) StartPartyRace(ctx context.Context, partyID string) (*RaceHandle, error) {
	p, err := e.party(partyID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return e.startLocked(ctx, p)
}

func (e *Engine) startLocked(ctx context.Context, p *Party) (*RaceHandle, error) {
	if p.state != StateLobby {
		return nil, reject(ErrLobbyClosed, "the race has already started")
	}
	if len(p.entrants) < e.settings.MinPartyEntrants {
		return nil, reject(ErrNotEnoughEntrants, fmt.Sprintf("need at least %d riders", e.settings.MinPartyEntrants))
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}

	backers := make(map[Colour]Backer, len(p.entrants))
	for _, en := range p.entrants {
		stats, err := e.store.GetStats(ctx, en.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load stats for %s: %w", en.ID, err)
		}
		backers[en.Colour] = Backer{PlayerID: en.ID, WinStreak: stats.WinStreak}
	}

	h, err := e.launch(e.newID(), p.Tier, ModeParty, p.Venue, append([]Entrant(nil), p.entrants...), backers, p.ID)
	if err != nil {
		// still a lobby, so the shutdown cancel refunds it
		return nil, err
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.state = StateRunning
	p.race = h
	return h, nil
}

// CancelParty closes a lobby that hasn't started and refunds everyone in it
func (e *Engine) CancelParty(ctx context.Context, partyID, reason string) error {
	p, err := e.party(partyID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return e.cancelLocked(ctx, p, reason)
}

func (e *Engine) cancelLocked(ctx context.Context, p *Party, reason string) error {
	if p.state != StateLobby {
		return reject(ErrLobbyClosed, "a running race can't be cancelled")
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.state = StateCancelled

	for _, en := range p.entrants {
		e.refund(ctx, en.ID, p.Tier, true)
	}

	e.mu.Lock()
	delete(e.parties, p.ID)
	for _, en := range p.entrants {
		if e.busy[en.ID] == p.ID {
			delete(e.busy, en.ID)
		}
	}
	if e.busy[p.Host.ID] == p.ID {
		delete(e.busy, p.Host.ID)
	}
	e.mu.Unlock()

	log.WithFields(log.Fields{
		"party_id": p.ID,
		"entrants": len(p.entrants),
		"reason":   reason,
	}).Info("Party lobby cancelled")
	return nil
}

// expire runs when a lobby times out: start it if enough riders joined, otherwise cancel
func (e *Engine) expire(partyID string) {
	p, err := e.party(partyID)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateLobby {
		return
	}

	if len(p.entrants) >= e.settings.MinPartyEntrants {
		_, err := e.startLocked(ctx, p)
		if err == nil {
			return
		}
		log.WithFields(log.Fields{"party_id": partyID}).WithError(err).Warn("Lobby auto-start failed")
	}

	if err := e.cancelLocked(ctx, p, "not enough riders before the lobby timed out"); err != nil {
		return
	}
	snap := p.snapshot()
	view := View{Kind: ViewCancelled, Mode: ModeParty, Venue: p.Venue, Party: &snap, Entrants: snap.Entrants,
		Note: "The lobby timed out without enough riders. Entry fees have been refunded."}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), presentTimeout)
		defer cancel()
		if _, err := e.messenger.Post(ctx, p.Venue.ChannelID, view); err != nil {
			log.WithFields(log.Fields{"party_id": partyID}).WithError(err).Warn("Failed to announce lobby timeout")
		}
	}()
}
