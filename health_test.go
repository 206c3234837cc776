package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"dice-derby/games/dice_derby"
	"dice-derby/models"
	"dice-derby/utils"
)

type healthRig struct {
	engine *dice_derby.Engine
	audit  *utils.MemoryAudit
	status *botStatus
}

func newHealthRig(t *testing.T) *healthRig {
	t.Helper()
	audit := utils.NewMemoryAudit()
	dispatcher := dice_derby.NewDispatcher(dice_derby.CrediterFunc(func(context.Context, models.PayoutTask) error {
		return nil
	}), nil, 0)
	engine, err := dice_derby.NewEngine(dice_derby.Options{
		Settings: dice_derby.Settings{TickInterval: time.Millisecond, MinPartyEntrants: 2},
		Store:    utils.NewMemoryStore(5),
		Audit:    audit,
		Payouts:  dispatcher,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Close(ctx)
		dispatcher.Close(ctx)
	})
	return &healthRig{engine: engine, audit: audit, status: &botStatus{}}
}

func getJSON(t *testing.T, rig *healthRig, audit utils.AuditReader, path string, wantStatus int) map[string]any {
	t.Helper()
	app := newHealthServer(rig.engine, audit, rig.status)
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", path, resp.StatusCode, wantStatus)
	}
	body, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("GET %s body %q: %v", path, body, err)
	}
	return out
}

func TestHealth(t *testing.T) {
	rig := newHealthRig(t)
	body := getJSON(t, rig, rig.audit, "/health", 200)
	if body["bot_status"] != "starting" || body["payouts_frozen"] != false {
		t.Errorf("body = %v", body)
	}

	rig.status.Set("connected")
	rig.engine.SetFrozen(true)
	body = getJSON(t, rig, rig.audit, "/health", 200)
	if body["bot_status"] != "connected" || body["payouts_frozen"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestRootStatus(t *testing.T) {
	rig := newHealthRig(t)
	rig.status.Set("ready")
	resp, err := newHealthServer(rig.engine, nil, rig.status).Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Discord Bot Status: ready" {
		t.Errorf("body = %q", body)
	}
}

func TestAuditEndpoint(t *testing.T) {
	rig := newHealthRig(t)
	getJSON(t, rig, nil, "/audit/anything", 503)
	getJSON(t, rig, rig.audit, "/audit/missing", 404)

	ctx := context.Background()
	h, err := rig.engine.StartSoloRace(ctx, dice_derby.Venue{GuildID: "g1", ChannelID: "c1"}, dice_derby.Player{ID: "p1"}, "green", "low")
	if err != nil {
		t.Fatal(err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := h.Wait(waitCtx); err != nil {
		t.Fatal(err)
	}
	// Close flushes the async audit writes
	if err := rig.engine.Close(waitCtx); err != nil {
		t.Fatal(err)
	}

	body := getJSON(t, rig, rig.audit, "/audit/"+h.ID, 200)
	records, _ := body["records"].([]any)
	if len(records) != 2 {
		t.Fatalf("records = %v", body["records"])
	}
	verification, ok := body["verification"].(map[string]any)
	if !ok {
		t.Fatalf("no verification: %v", body)
	}
	if verification["match"] != true || verification["pending"] != false {
		t.Errorf("verification = %v", verification)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	rig := newHealthRig(t)
	getJSON(t, rig, rig.audit, "/leaderboard?limit=0", 400)
	getJSON(t, rig, rig.audit, "/leaderboard?limit=101", 400)

	body := getJSON(t, rig, rig.audit, "/leaderboard", 200)
	if players, _ := body["players"].([]any); len(players) != 0 {
		t.Errorf("players = %v", body["players"])
	}
}
