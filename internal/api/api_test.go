package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/bias"
	"github.com/classlab/probsim/internal/games"
	"github.com/classlab/probsim/internal/session"
	"github.com/classlab/probsim/internal/store"
)

type testEnv struct {
	server *Server
	db     *store.SQLiteDB
	http   *httptest.Server
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	srv := NewServer(db, session.NewMemoryStore(), opts)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, db: db, http: ts}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(e.http.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func createSession(t *testing.T, e *testEnv, req CreateSessionRequest) SessionResponse {
	t.Helper()
	resp := e.post(t, "/api/v1/sessions", req)
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("create session: status %d body %s", resp.StatusCode, body)
	}
	var out SessionResponse
	decodeBody(t, resp, &out)
	return out
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t, Options{})
	for _, path := range []string{"/health", "/health/ready", "/health/live"} {
		resp := e.get(t, path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestListGames(t *testing.T) {
	e := newTestEnv(t, Options{})
	resp := e.get(t, "/api/v1/games")
	var out struct {
		Games []games.GameSpec `json:"games"`
	}
	decodeBody(t, resp, &out)
	if len(out.Games) != 4 {
		t.Errorf("got %d games", len(out.Games))
	}
}

func TestUpdownFullFlow(t *testing.T) {
	e := newTestEnv(t, Options{})

	sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "updown", Bet: 100})
	if sess.SessionKey == "" {
		t.Fatal("empty session key")
	}
	if sess.Balance == nil || !sess.Balance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("starting balance %v", sess.Balance)
	}

	resp := e.post(t, "/api/v1/play/updown", PlayRequest{
		SessionKey: sess.SessionKey,
		Guesses:    []int{25, 50, 75, 10, 90},
	})
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("play: status %d body %s", resp.StatusCode, body)
	}
	var played PlayResponse
	decodeBody(t, resp, &played)

	if played.Result != "win" && played.Result != "lose" {
		t.Errorf("result %q", played.Result)
	}
	wantBalance := decimal.NewFromInt(10000).Sub(played.Bet).Add(played.Payout)
	if !played.Balance.Equal(wantBalance) {
		t.Errorf("balance %s, want %s", played.Balance, wantBalance)
	}

	// The session is consumed.
	resp = e.post(t, "/api/v1/play/updown", PlayRequest{SessionKey: sess.SessionKey, Guesses: []int{1}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("replayed session: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateSessionValidation(t *testing.T) {
	e := newTestEnv(t, Options{})

	cases := []struct {
		name   string
		req    CreateSessionRequest
		status int
	}{
		{"missing user", CreateSessionRequest{GameID: "slot", Bet: 10}, http.StatusBadRequest},
		{"unknown game", CreateSessionRequest{UserID: "u1", GameID: "poker", Bet: 10}, http.StatusNotFound},
		{"bet below min", CreateSessionRequest{UserID: "u1", GameID: "slot", Bet: 0}, http.StatusBadRequest},
		{"bet above max", CreateSessionRequest{UserID: "u1", GameID: "slot", Bet: 99999}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := e.post(t, "/api/v1/sessions", tc.req)
		if resp.StatusCode != tc.status {
			t.Errorf("%s: status %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
		resp.Body.Close()
	}
}

func TestSessionConflict(t *testing.T) {
	e := newTestEnv(t, Options{})

	createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "slot", Bet: 10})
	resp := e.post(t, "/api/v1/sessions", CreateSessionRequest{UserID: "u1", GameID: "slot", Bet: 10})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double start: status %d, want 409", resp.StatusCode)
	}
	var engineErr EngineError
	decodeBody(t, resp, &engineErr)
	if engineErr.Type != ErrTypeConflict {
		t.Errorf("error type %s", engineErr.Type)
	}

	// A different game is allowed.
	createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "baccarat", Bet: 10, BetChoice: "player"})
}

func TestVerifyAndHeartbeat(t *testing.T) {
	e := newTestEnv(t, Options{})
	sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "slot", Bet: 10})

	resp := e.post(t, "/api/v1/sessions/verify", VerifySessionRequest{SessionKey: sess.SessionKey})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: status %d", resp.StatusCode)
	}
	var verified SessionResponse
	decodeBody(t, resp, &verified)
	if verified.GameID != "slot" || verified.Bet != 10 {
		t.Errorf("verified %+v", verified)
	}

	resp = e.post(t, "/api/v1/sessions/"+sess.SessionKey+"/heartbeat", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("heartbeat: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.post(t, "/api/v1/sessions/missing/heartbeat", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("heartbeat unknown key: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHouseRuleFlipsSlotWin(t *testing.T) {
	// A certain house rule turns every raw slot win into a loss with
	// non-winning reels.
	e := newTestEnv(t, Options{Rules: []bias.Rule{{
		ID:          "always-house",
		Enabled:     true,
		Direction:   bias.DirectionHouse,
		Probability: 1.0,
		Games:       []string{"slot"},
	}}})

	for i := 0; i < 20; i++ {
		sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "slot", Bet: 10})
		resp := e.post(t, "/api/v1/play/slot", PlayRequest{SessionKey: sess.SessionKey})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("play %d: status %d", i, resp.StatusCode)
		}
		var played PlayResponse
		decodeBody(t, resp, &played)

		if played.Result != "lose" || !played.Payout.IsZero() {
			t.Fatalf("round %d: %s x%v payout %s", i, played.Result, played.Multiplier, played.Payout)
		}
	}

	// Every settled round carries the rule id or fired no rule because the
	// raw spin already lost.
	results, err := e.db.ListResults(store.ResultsQuery{UserID: "u1", GameID: "slot", Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 20 {
		t.Fatalf("%d results", len(results))
	}
	for _, res := range results {
		if res.Result != "lose" {
			t.Errorf("result %s with certain house rule", res.Result)
		}
	}
}

func TestPlayerRuleFlipsLossToWin(t *testing.T) {
	e := newTestEnv(t, Options{Rules: []bias.Rule{{
		ID:              "always-assist",
		Enabled:         true,
		Direction:       bias.DirectionPlayer,
		Probability:     1.0,
		Games:           []string{"updown"},
		ForceMultiplier: 2.0,
	}}})

	sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "updown", Bet: 10})
	resp := e.post(t, "/api/v1/play/updown", PlayRequest{
		SessionKey: sess.SessionKey,
		Guesses:    []int{1, 2, 3, 4, 5},
	})
	var played PlayResponse
	decodeBody(t, resp, &played)

	if played.Result != "win" {
		t.Fatalf("assisted round lost: %+v", played)
	}
	if played.Multiplier < 2.0 {
		t.Errorf("multiplier %v below forced floor", played.Multiplier)
	}
	// The displayed target must equal the last guess.
	detail, ok := played.Detail.(map[string]interface{})
	if !ok {
		t.Fatalf("detail %T", played.Detail)
	}
	if target, _ := detail["target"].(float64); int(target) != 5 {
		t.Errorf("reconciled target %v, want last guess 5", detail["target"])
	}
}

func TestHorseFullFlowAndReplay(t *testing.T) {
	e := newTestEnv(t, Options{})

	sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "horse", Bet: 50})
	if len(sess.Horses) != 4 || len(sess.Odds) != 4 {
		t.Fatalf("preview horses=%d odds=%d", len(sess.Horses), len(sess.Odds))
	}
	if sess.TrackKey != "oval" {
		t.Errorf("default track %s", sess.TrackKey)
	}

	resp := e.post(t, "/api/v1/play/horse", PlayRequest{
		SessionKey: sess.SessionKey,
		Choice:     sess.Horses[0].ID,
	})
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("play: status %d body %s", resp.StatusCode, body)
	}
	var played PlayResponse
	decodeBody(t, resp, &played)

	resp = e.get(t, "/api/v1/horse/history")
	var history ResultsResponse
	decodeBody(t, resp, &history)
	if len(history.Results) != 1 {
		t.Fatalf("history has %d rounds", len(history.Results))
	}
	seed := history.Results[0].Seed

	resp = e.get(t, "/api/v1/horse/replay/" + played.ResultID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay by id: status %d", resp.StatusCode)
	}
	var replay struct {
		Race games.HorseDetail `json:"race"`
	}
	decodeBody(t, resp, &replay)
	if replay.Race.RaceSeed != seed || replay.Race.WinnerID == "" {
		t.Errorf("replay %+v", replay.Race)
	}

	resp = e.get(t, fmt.Sprintf("/api/v1/horse/replay/by-seed/%d", seed))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay by seed: status %d", resp.StatusCode)
	}
	var bySeed struct {
		Race games.HorseDetail `json:"race"`
	}
	decodeBody(t, resp, &bySeed)
	if bySeed.Race.WinnerID != replay.Race.WinnerID {
		t.Errorf("by-seed winner %s, by-id winner %s", bySeed.Race.WinnerID, replay.Race.WinnerID)
	}

	resp = e.get(t, "/api/v1/horse/replay/nonexistent")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown replay: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSettingsEndpoints(t *testing.T) {
	e := newTestEnv(t, Options{})

	resp := e.get(t, "/api/v1/settings")
	var got SettingsResponse
	decodeBody(t, resp, &got)
	if len(got.Settings) != 4 {
		t.Fatalf("%d settings rows", len(got.Settings))
	}

	update := got.Settings[0]
	update.RiskEnabled = false
	resp = e.post(t, "/api/v1/settings", SettingsResponse{Settings: []bias.GameSettings{update}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save settings: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.get(t, "/api/v1/settings")
	var after SettingsResponse
	decodeBody(t, resp, &after)
	for _, gs := range after.Settings {
		if gs.GameID == update.GameID && gs.RiskEnabled {
			t.Error("saved setting not applied")
		}
	}

	resp = e.post(t, "/api/v1/settings", SettingsResponse{Settings: []bias.GameSettings{{GameID: "poker"}}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown game settings: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdjustmentsEndpoints(t *testing.T) {
	e := newTestEnv(t, Options{})

	resp := e.post(t, "/api/v1/adjustments", AdjustmentRequest{UserID: "u1", Amount: -500, Reason: "correction"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create adjustment: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	bal, err := e.db.Balance("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(decimal.NewFromInt(9500)) {
		t.Errorf("balance %s, want 9500", bal)
	}

	resp = e.get(t, "/api/v1/adjustments?user_id=u1")
	var list struct {
		Adjustments []store.Adjustment `json:"adjustments"`
	}
	decodeBody(t, resp, &list)
	if len(list.Adjustments) != 1 {
		t.Fatalf("%d adjustments", len(list.Adjustments))
	}

	req, _ := http.NewRequest(http.MethodDelete, e.http.URL+"/api/v1/adjustments?user_id=u1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete adjustments: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.post(t, "/api/v1/adjustments", AdjustmentRequest{UserID: "u1", Amount: 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero adjustment: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestResetEndpoint(t *testing.T) {
	e := newTestEnv(t, Options{})

	sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "slot", Bet: 10})
	resp := e.post(t, "/api/v1/play/slot", PlayRequest{SessionKey: sess.SessionKey})
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, e.http.URL+"/api/v1/reset", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	results, err := e.db.ListResults(store.ResultsQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("%d results after reset", len(results))
	}
}

func TestBaccaratPlayValidatesChoice(t *testing.T) {
	e := newTestEnv(t, Options{})
	sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "baccarat", Bet: 10})

	resp := e.post(t, "/api/v1/play/baccarat", PlayRequest{SessionKey: sess.SessionKey, Choice: "dealer"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid choice: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPlayGameMismatch(t *testing.T) {
	e := newTestEnv(t, Options{})
	sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "slot", Bet: 10})

	resp := e.post(t, "/api/v1/play/baccarat", PlayRequest{SessionKey: sess.SessionKey, Choice: "player"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("game mismatch: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSessionArchiveLifecycle(t *testing.T) {
	e := newTestEnv(t, Options{})

	sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "updown", Bet: 100})

	listSessions := func() []store.SessionRecord {
		t.Helper()
		resp := e.get(t, "/api/v1/sessions")
		var out struct {
			Sessions []store.SessionRecord `json:"sessions"`
		}
		decodeBody(t, resp, &out)
		return out.Sessions
	}

	records := listSessions()
	if len(records) != 1 {
		t.Fatalf("got %d archived sessions, want 1", len(records))
	}
	if records[0].Key != sess.SessionKey || records[0].Status != store.SessionPending {
		t.Errorf("archive %s/%s, want %s/pending", records[0].Key, records[0].Status, sess.SessionKey)
	}

	resp := e.post(t, "/api/v1/play/updown", PlayRequest{
		SessionKey: sess.SessionKey,
		Guesses:    []int{25, 50, 75, 10, 90},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("play: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	records = listSessions()
	if len(records) != 1 || records[0].Status != store.SessionSettled {
		t.Fatalf("archive after play: %+v", records)
	}
}

func TestConcurrentPlaySettlesOnce(t *testing.T) {
	e := newTestEnv(t, Options{})

	const rounds = 10
	for i := 0; i < rounds; i++ {
		sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "updown", Bet: 100})

		body, err := json.Marshal(PlayRequest{
			SessionKey: sess.SessionKey,
			Guesses:    []int{25, 50, 75, 10, 90},
		})
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		codes := make([]int, 2)
		errs := make([]error, 2)
		for j := range codes {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				resp, err := http.Post(e.http.URL+"/api/v1/play/updown", "application/json", bytes.NewReader(body))
				if err != nil {
					errs[j] = err
					return
				}
				codes[j] = resp.StatusCode
				resp.Body.Close()
			}(j)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				t.Fatalf("play request: %v", err)
			}
		}
		ok := 0
		for _, code := range codes {
			switch code {
			case http.StatusOK:
				ok++
			case http.StatusConflict, http.StatusNotFound:
			default:
				t.Fatalf("unexpected status %d", code)
			}
		}
		if ok != 1 {
			t.Fatalf("round %d: %d of 2 concurrent resolves succeeded (codes %v), want exactly 1", i, ok, codes)
		}
	}

	results, err := e.db.ListResults(store.ResultsQuery{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != rounds {
		t.Fatalf("%d settled rows for %d sessions", len(results), rounds)
	}
}

func TestPlayRejectsWrongUser(t *testing.T) {
	e := newTestEnv(t, Options{})
	sess := createSession(t, e, CreateSessionRequest{UserID: "u1", GameID: "updown", Bet: 100})

	resp := e.post(t, "/api/v1/play/updown", PlayRequest{
		SessionKey: sess.SessionKey,
		UserID:     "intruder",
		Guesses:    []int{50},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("wrong user: status %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// The rejected attempt must not consume the session.
	resp = e.post(t, "/api/v1/play/updown", PlayRequest{
		SessionKey: sess.SessionKey,
		UserID:     "u1",
		Guesses:    []int{25, 50, 75, 10, 90},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner play after rejection: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}
