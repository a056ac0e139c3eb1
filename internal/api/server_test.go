package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/conveyor-core/internal/audit"
	"github.com/nerrad567/conveyor-core/internal/auth"
	"github.com/nerrad567/conveyor-core/internal/bridges/opcua"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/config"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/database"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/logging"
	"github.com/nerrad567/conveyor-core/internal/ledger"
	"github.com/nerrad567/conveyor-core/internal/scan"
	"github.com/nerrad567/conveyor-core/internal/slots"
	"github.com/nerrad567/conveyor-core/internal/spot"
	_ "github.com/nerrad567/conveyor-core/migrations"
)

const (
	testSecret   = "test-secret-key-at-least-32-characters-long"
	testPIN      = "4321"
	testUsername = "counter"
)

type fakeDevice struct {
	mu     sync.Mutex
	target int16
	jogs   int
	coil   bool
	err    error
}

func (f *fakeDevice) JogForward(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jogs++
	return f.err
}

func (f *fakeDevice) SetTargetSlot(_ context.Context, slot int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.target = slot
	return nil
}

func (f *fakeDevice) TargetSlot(context.Context) (int16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target, f.err
}

func (f *fakeDevice) HangerSensor(context.Context) (bool, error) { return true, f.err }

func (f *fakeDevice) FieldBusSlot(context.Context) (int16, error) { return 7, f.err }

func (f *fakeDevice) SetCommandCoil(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coil = on
	return f.err
}

type fakeRouter struct {
	mu    sync.Mutex
	slots []int
}

func (f *fakeRouter) RunToSlot(_ context.Context, slot int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots = append(f.slots, slot)
	return nil
}

type fakeHanger struct{}

func (fakeHanger) WaitForHanger(context.Context) (bool, error) { return true, nil }

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   *ledger.Store
	device  *fakeDevice
	router  *fakeRouter
}

type envOptions struct {
	noDevice bool
	noRouter bool
}

// newTestEnv creates a Server over an in-memory ledger with five slots and
// one operator.
func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	engine := slots.NewEngine(db, slots.Config{}, log)
	if _, err := engine.Provision(ctx, 5); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	env := &testEnv{store: ledger.NewStore(db), router: &fakeRouter{}}
	scanDeps := scan.Deps{DB: db, Slots: engine, Logger: log}
	if !opts.noRouter {
		scanDeps.Router = env.router
		scanDeps.Hanger = fakeHanger{}
	}

	authSvc := auth.NewService(db, testSecret, time.Hour, log)
	if _, err := authSvc.CreateOperator(ctx, testUsername, testPIN); err != nil {
		t.Fatalf("CreateOperator() error = %v", err)
	}

	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:     config.WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger: log,
		DB:     db,
		Slots:  engine,
		Scan:   scan.NewController(scanDeps),
		Spot:   spot.NewIngestor(db, spot.PolicySkipLine, time.UTC, log),
		Auth:   authSvc,
	}
	if !opts.noDevice {
		env.device = &fakeDevice{}
		deps.Device = env.device
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	hubCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(hubCtx)
	go srv.drainAuditLog(hubCtx)

	env.srv = srv
	env.handler = srv.buildRouter()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) (token, sessionID string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/login", `{"pin":"`+testPIN+`"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token   string         `json:"token"`
		Session ledger.Session `json:"session"`
	}
	decode(t, w, &resp)
	if resp.Token == "" {
		t.Fatal("login returned empty token")
	}
	return resp.Token, resp.Session.ID
}

// seedTicket creates a ticket with one garment per item id.
func (e *testEnv) seedTicket(t *testing.T, invoice string, items ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.store.CreateCustomer(ctx, ledger.Customer{Identifier: "CUST-1", FirstName: "Jane", LastName: "Doe"}); err != nil {
		t.Fatalf("CreateCustomer() error = %v", err)
	}
	if _, err := e.store.CreateTicket(ctx, ledger.Ticket{
		FullInvoiceNumber:    invoice,
		DisplayInvoiceNumber: invoice,
		NumberOfItems:        len(items),
		Status:               ledger.StatusNotProcessed,
		CustomerIdentifier:   "CUST-1",
	}); err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	for _, id := range items {
		if _, err := e.store.CreateGarment(ctx, ledger.Garment{ItemID: id, FullInvoiceNumber: invoice, SlotNumber: ledger.NoSlot}); err != nil {
			t.Fatalf("CreateGarment() error = %v", err)
		}
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, w.Body.String())
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decode(t, w, &body)
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "ok" || body["version"] != "" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.srv.cfg.CORS.AllowedOrigins = []string{"http://counter.local"}

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"http://counter.local", "http://counter.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/slots", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("status = %d, want 204", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	if w := env.do(t, http.MethodGet, "/api/v1/nonexistent", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"wrong pin", `{"pin":"0000"}`, http.StatusUnauthorized},
		{"malformed pin", `{"pin":"12"}`, http.StatusUnprocessableEntity},
		{"invalid json", `not json`, http.StatusBadRequest},
		{"unknown field", `{"pin":"4321","username":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/auth/login", tt.body, "")
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}

	token, _ := env.login(t)
	w := env.do(t, http.MethodGet, "/api/v1/auth/me", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d", w.Code)
	}
	var me map[string]any
	decode(t, w, &me)
	if me["username"] != testUsername {
		t.Errorf("me = %v", me)
	}
}

func TestLogout_InvalidatesToken(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _ := env.login(t)

	if w := env.do(t, http.MethodPost, "/api/v1/auth/logout", "", token); w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", w.Code)
	}
	w := env.do(t, http.MethodGet, "/api/v1/auth/me", "", token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status after logout = %d, want 401", w.Code)
	}
}

func TestMutatingRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	routes := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/scan"},
		{http.MethodPost, "/api/v1/slots/reserve"},
		{http.MethodPost, "/api/v1/slots/1/clear"},
		{http.MethodPost, "/api/v1/slots/clear-conveyor"},
		{http.MethodPost, "/api/v1/spot/ingest"},
		{http.MethodPost, "/api/v1/device/jog"},
		{http.MethodPut, "/api/v1/fieldbus/coil"},
		{http.MethodPost, "/api/v1/operators"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := env.do(t, rt.method, rt.path, `{}`, "")
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if code := errorCode(t, w); code != ErrCodeUnauthorized {
				t.Errorf("error code = %q", code)
			}
		})
	}

	if w := env.do(t, http.MethodPost, "/api/v1/scan", `{"code":"ITEM-1"}`, "not-a-token"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}
}

func TestCreateOperator(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _ := env.login(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"created", `{"username":"second","pin":"1111"}`, http.StatusCreated},
		{"duplicate username", `{"username":"second","pin":"2222"}`, http.StatusConflict},
		{"pin in use", `{"username":"third","pin":"4321"}`, http.StatusConflict},
		{"bad username", `{"username":"has space","pin":"3333"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/operators", tt.body, token)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}

	w := env.do(t, http.MethodGet, "/api/v1/operators", "", "")
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 2 {
		t.Errorf("operators = %d, want 2", list.Count)
	}
	if strings.Contains(w.Body.String(), "argon2") {
		t.Error("operator listing leaks PIN hashes")
	}
}

func TestScanFlow(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seedTicket(t, "FULL-1", "ITEM-1", "ITEM-2")
	token, sessionID := env.login(t)

	w := env.do(t, http.MethodGet, "/api/v1/scan/ITEM-1/last", "", "")
	var last map[string]any
	decode(t, w, &last)
	if last["last_garment"] != false {
		t.Errorf("last = %v, want false for first of two", last)
	}

	w = env.do(t, http.MethodPost, "/api/v1/scan", `{"code":"ITEM-1","route":true}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("first scan status = %d, body = %s", w.Code, w.Body.String())
	}
	var first scanResponse
	decode(t, w, &first)
	if first.Slot != 1 || !first.FirstOfTicket || first.LastGarment {
		t.Errorf("first scan = %+v", first.Result)
	}
	if !first.Routed || !first.Hung {
		t.Errorf("routed = %v, hung = %v, want both true", first.Routed, first.Hung)
	}
	if len(env.router.slots) != 1 || env.router.slots[0] != 1 {
		t.Errorf("router slots = %v, want [1]", env.router.slots)
	}

	slot, err := env.store.GetSlot(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetSlot() error = %v", err)
	}
	if slot.State != ledger.SlotOccupied {
		t.Errorf("slot 1 state = %s, want Occupied after hanger", slot.State)
	}

	w = env.do(t, http.MethodPost, "/api/v1/scan", `{"code":"ITEM-2","route":true}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("last scan status = %d, body = %s", w.Code, w.Body.String())
	}
	var second scanResponse
	decode(t, w, &second)
	if !second.LastGarment || second.Slot != 1 {
		t.Errorf("last scan = %+v", second.Result)
	}
	if !second.Routed || len(env.router.slots) != 2 || env.router.slots[1] != 1 {
		t.Errorf("last garment routed = %v, router slots = %v, want [1 1]", second.Routed, env.router.slots)
	}

	ticket, err := env.store.GetTicket(context.Background(), "FULL-1")
	if err != nil {
		t.Fatalf("GetTicket() error = %v", err)
	}
	if ticket.Status != ledger.StatusProcessed || ticket.GarmentsProcessed != 2 {
		t.Errorf("ticket = %s %d/%d", ticket.Status, ticket.GarmentsProcessed, ticket.NumberOfItems)
	}

	sess, err := env.store.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.GarmentsScanned != 2 || sess.TicketsCompleted != 1 {
		t.Errorf("session counters = %d scanned, %d completed", sess.GarmentsScanned, sess.TicketsCompleted)
	}

	w = env.do(t, http.MethodPost, "/api/v1/scan", `{"code":"ITEM-1"}`, token)
	if w.Code != http.StatusConflict {
		t.Errorf("rescan of processed ticket status = %d, want 409", w.Code)
	}
}

func TestScanFlow_SingleItemTicket(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seedTicket(t, "FULL-5", "ITEM-5")
	token, _ := env.login(t)

	w := env.do(t, http.MethodPost, "/api/v1/scan", `{"code":"ITEM-5","route":true}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d, body = %s", w.Code, w.Body.String())
	}
	var res scanResponse
	decode(t, w, &res)
	if !res.LastGarment || res.Slot != 1 || !res.Routed {
		t.Errorf("scan = %+v routed = %v, want last garment routed to slot 1", res.Result, res.Routed)
	}
	if len(env.router.slots) != 1 || env.router.slots[0] != 1 {
		t.Errorf("router slots = %v, want [1]", env.router.slots)
	}

	ticket, err := env.store.GetTicket(context.Background(), "FULL-5")
	if err != nil {
		t.Fatalf("GetTicket() error = %v", err)
	}
	if ticket.Status != ledger.StatusProcessed || ticket.GarmentsProcessed != 1 {
		t.Errorf("ticket = %s %d/%d", ticket.Status, ticket.GarmentsProcessed, ticket.NumberOfItems)
	}
	slot, err := env.store.GetSlot(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetSlot() error = %v", err)
	}
	if slot.State != ledger.SlotEmpty {
		t.Errorf("slot 1 state = %s, want Empty after completion", slot.State)
	}
}

func TestScan_Errors(t *testing.T) {
	env := newTestEnv(t, envOptions{noRouter: true})
	token, _ := env.login(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"malformed code", http.MethodPost, "/api/v1/scan", `{"code":"AB"}`, http.StatusUnprocessableEntity},
		{"unknown garment", http.MethodPost, "/api/v1/scan", `{"code":"MISSING-1"}`, http.StatusNotFound},
		{"route without conveyor", http.MethodPost, "/api/v1/scan/route", `{"slot":2}`, http.StatusServiceUnavailable},
		{"route bad slot", http.MethodPost, "/api/v1/scan/route", `{"slot":0}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body, token)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestCompleteTicket(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seedTicket(t, "FULL-9", "ITEM-A", "ITEM-B", "ITEM-C")
	token, _ := env.login(t)

	if w := env.do(t, http.MethodPost, "/api/v1/scan", `{"code":"ITEM-A"}`, token); w.Code != http.StatusOK {
		t.Fatalf("scan status = %d", w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/v1/scan/ITEM-A/complete", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body = %s", w.Code, w.Body.String())
	}
	var res scan.Result
	decode(t, w, &res)
	if res.Slot != 1 || res.GarmentsProcessed != 3 {
		t.Errorf("result = %+v", res)
	}

	slot, err := env.store.GetSlot(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetSlot() error = %v", err)
	}
	if slot.State != ledger.SlotEmpty {
		t.Errorf("slot state = %s, want Empty", slot.State)
	}
}

func TestSlots(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _ := env.login(t)

	w := env.do(t, http.MethodPost, "/api/v1/slots/reserve", `{"ticket":"FULL-1"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("reserve status = %d, body = %s", w.Code, w.Body.String())
	}

	if w := env.do(t, http.MethodPost, "/api/v1/slots/3/block", "", token); w.Code != http.StatusOK {
		t.Fatalf("block status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/slots/stats", "", "")
	var stats slots.Stats
	decode(t, w, &stats)
	if stats.Total != 5 || stats.Reserved != 1 || stats.Blocked != 1 || stats.Empty != 3 {
		t.Errorf("stats = %+v", stats)
	}

	w = env.do(t, http.MethodGet, "/api/v1/slots?state=Blocked", "", "")
	var list struct {
		Slots []ledger.Slot `json:"slots"`
	}
	decode(t, w, &list)
	if len(list.Slots) != 1 || list.Slots[0].Number != 3 {
		t.Errorf("blocked slots = %+v", list.Slots)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/slots?state=Bogus", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bogus state filter status = %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/slots/3", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("public slot read status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var one ledger.Slot
	decode(t, w, &one)
	if one.Number != 3 || one.State != ledger.SlotBlocked {
		t.Errorf("slot 3 = %+v, want Blocked", one)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/slots/3/clear", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated clear status = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/slots/99", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing slot status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/slots/abc", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric slot status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/slots/3/clear", "", token)
	var cleared ledger.Slot
	decode(t, w, &cleared)
	if cleared.State != ledger.SlotEmpty {
		t.Errorf("cleared slot = %+v", cleared)
	}

	w = env.do(t, http.MethodPost, "/api/v1/slots/clear-conveyor", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("clear-conveyor status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/slots/stats", "", "")
	decode(t, w, &stats)
	if stats.Empty != 5 {
		t.Errorf("empty after clear-conveyor = %d, want 5", stats.Empty)
	}
}

func TestSlots_NoneAvailable(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _ := env.login(t)

	for i := range 5 {
		body := `{"ticket":"T-` + string(rune('A'+i)) + `"}`
		if w := env.do(t, http.MethodPost, "/api/v1/slots/reserve", body, token); w.Code != http.StatusOK {
			t.Fatalf("reserve %d status = %d", i, w.Code)
		}
	}
	w := env.do(t, http.MethodPost, "/api/v1/slots/reserve", `{"ticket":"T-Z"}`, token)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestSpotIngest(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _ := env.login(t)

	batch := `ADDITEM,"FULL-7","INV-7","1","0","0.0","CUST-7","Ann","Lee","555","ITEM-7","Coat","","","2024-01-01T09:00:00","2024-01-05T09:00:00",""` +
		"\r\nBOGUS,\"x\"\r\n"
	w := env.do(t, http.MethodPost, "/api/v1/spot/ingest", batch, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	good := `ADDITEM,"FULL-7","INV-7","1","0","0.0","CUST-7","Ann","Lee","555","ITEM-7","Coat","","","2024-01-01T09:00:00","2024-01-05T09:00:00",""`
	w = env.do(t, http.MethodPost, "/api/v1/spot/ingest", good, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var report spot.Report
	decode(t, w, &report)
	if !report.Committed || report.Applied != 1 {
		t.Errorf("report = %+v", report)
	}

	w = env.do(t, http.MethodGet, "/api/v1/data/recall/ITEM-7", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("recall status = %d", w.Code)
	}
	var recall struct {
		Ticket ledger.Ticket `json:"ticket"`
		Slot   *ledger.Slot  `json:"slot"`
	}
	decode(t, w, &recall)
	if recall.Ticket.FullInvoiceNumber != "FULL-7" || recall.Slot != nil {
		t.Errorf("recall = %+v", recall)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/spot/ingest", "\n\n", token); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty batch status = %d, want 422", w.Code)
	}
}

func TestDataViews(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seedTicket(t, "FULL-1", "ITEM-1", "ITEM-2")
	token, _ := env.login(t)

	if w := env.do(t, http.MethodPost, "/api/v1/scan", `{"code":"ITEM-1"}`, token); w.Code != http.StatusOK {
		t.Fatalf("scan status = %d", w.Code)
	}

	tests := []struct {
		name     string
		path     string
		wantCode int
		contains string
	}{
		{"customers", "/api/v1/data/customers?q=Jane", http.StatusOK, "CUST-1"},
		{"customer tickets", "/api/v1/data/customers/CUST-1/tickets", http.StatusOK, "FULL-1"},
		{"missing customer", "/api/v1/data/customers/NOPE/tickets", http.StatusNotFound, ""},
		{"tickets", "/api/v1/data/tickets?q=FULL", http.StatusOK, "FULL-1"},
		{"ticket", "/api/v1/data/tickets/FULL-1", http.StatusOK, "Processing"},
		{"garments", "/api/v1/data/tickets/FULL-1/garments", http.StatusOK, "ITEM-2"},
		{"recall by item", "/api/v1/data/recall/ITEM-2", http.StatusOK, `"slot_number":1`},
		{"recall by invoice", "/api/v1/data/recall/FULL-1", http.StatusOK, `"slot_number":1`},
		{"recall unknown", "/api/v1/data/recall/NOPE", http.StatusNotFound, ""},
		{"sessions today", "/api/v1/data/sessions", http.StatusOK, `"garments_scanned":1`},
		{"sessions bad date", "/api/v1/data/sessions?from=yesterday", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, "", "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.contains != "" && !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body %s does not contain %q", w.Body.String(), tt.contains)
			}
		})
	}
}

func TestDevice(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _ := env.login(t)

	if w := env.do(t, http.MethodPut, "/api/v1/device/target-slot", `{"slot":12}`, token); w.Code != http.StatusOK {
		t.Fatalf("set target status = %d", w.Code)
	}
	w := env.do(t, http.MethodGet, "/api/v1/device/target-slot", "", "")
	var target map[string]int
	decode(t, w, &target)
	if target["slot"] != 12 {
		t.Errorf("target = %v, want 12", target)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/device/jog", "", token); w.Code != http.StatusOK {
		t.Errorf("jog status = %d", w.Code)
	}
	if w := env.do(t, http.MethodPut, "/api/v1/fieldbus/coil", `{"on":true}`, token); w.Code != http.StatusOK {
		t.Errorf("coil status = %d", w.Code)
	}
	if env.device.jogs != 1 || !env.device.coil {
		t.Errorf("device = %d jogs, coil %v", env.device.jogs, env.device.coil)
	}

	env.device.err = opcua.ErrNotConnected
	w = env.do(t, http.MethodGet, "/api/v1/device/hanger", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("disconnected status = %d, want 503", w.Code)
	}
}

func TestDevice_NotConfigured(t *testing.T) {
	env := newTestEnv(t, envOptions{noDevice: true})
	token, _ := env.login(t)

	for _, path := range []string{"/api/v1/device/target-slot", "/api/v1/device/hanger", "/api/v1/fieldbus/register"} {
		if w := env.do(t, http.MethodGet, path, "", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, w.Code)
		}
	}
	if w := env.do(t, http.MethodPost, "/api/v1/device/jog", "", token); w.Code != http.StatusServiceUnavailable {
		t.Errorf("jog status = %d, want 503", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/device/status", "", "")
	var status map[string]any
	decode(t, w, &status)
	if status["configured"] != false {
		t.Errorf("status = %v", status)
	}
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w := env.do(t, http.MethodGet, "/api/v1/system/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status SystemStatus
	decode(t, w, &status)
	if status.Conveyor.Slots["total"] != 5 || status.Database.Driver != database.DriverSQLite {
		t.Errorf("status = %+v", status)
	}
	if status.MQTT.Configured {
		t.Error("MQTT reported configured without a client")
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.do(t, http.MethodGet, "/api/v1/health", "", "")

	w := env.do(t, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "conveyor_http_requests_total") {
		t.Error("metrics output missing conveyor_http_requests_total")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ledger.ErrNotFound, http.StatusNotFound},
		{slots.ErrNoAvailableSlots, http.StatusConflict},
		{auth.ErrTokenInvalid, http.StatusUnauthorized},
		{scan.ErrNoConveyor, http.StatusServiceUnavailable},
		{spot.ErrUnsupportedOp, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWebSocket_ReceivesBroadcast(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _ := env.login(t)

	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?token=" + token

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"slot"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var ack WSMessage
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "sub-1" {
		t.Fatalf("ack = %+v", ack)
	}

	env.srv.Hub().Broadcast("scan", map[string]any{"ignored": true})
	env.srv.Hub().Broadcast("slot", map[string]any{"slot": 4})

	var ev WSMessage
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != WSTypeEvent || ev.EventType != "slot" {
		t.Errorf("event = %+v, want slot event", ev)
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	if w := env.do(t, http.MethodGet, "/api/v1/ws", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/ws?token=garbage", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}
}

func TestHub_SubscribeAll(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{WSChannelAll: {}},
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d", hub.ClientCount())
	}

	hub.Broadcast("spot", "a")
	hub.Broadcast("spot", "b") // buffer of one: dropped

	if got := len(client.send); got != 1 {
		t.Errorf("queued = %d, want 1", got)
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after unregister", hub.ClientCount())
	}
	hub.Broadcast("spot", "c")
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _ := env.login(t)

	if w := env.do(t, http.MethodGet, "/api/v1/audit", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("audit without token status = %d, want 401", w.Code)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/slots/2/block", "", token); w.Code != http.StatusOK {
		t.Fatalf("block status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/api/v1/slots/clear-conveyor", "", token); w.Code != http.StatusOK {
		t.Fatalf("clear-conveyor status = %d, body = %s", w.Code, w.Body.String())
	}

	// Entries are written asynchronously.
	var result audit.ListResult
	deadline := time.Now().Add(2 * time.Second)
	for {
		w := env.do(t, http.MethodGet, "/api/v1/audit", "", token)
		if w.Code != http.StatusOK {
			t.Fatalf("audit status = %d, body = %s", w.Code, w.Body.String())
		}
		result = audit.ListResult{}
		decode(t, w, &result)
		if result.Total >= 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if result.Total != 3 {
		t.Fatalf("audit total = %d, want 3", result.Total)
	}

	byAction := map[string]audit.AuditLog{}
	for _, l := range result.Logs {
		byAction[l.Action] = l
	}
	slot := byAction[audit.ActionSlot]
	if slot.EntityID != "2" || slot.Operator != testUsername || slot.Details["op"] != "blocked" {
		t.Errorf("slot entry = %+v", slot)
	}
	if login := byAction[audit.ActionLogin]; login.Operator != testUsername || login.EntityType != audit.EntityOperator {
		t.Errorf("login entry = %+v", login)
	}
	if cleared := byAction[audit.ActionClear]; cleared.EntityType != audit.EntityConveyor || cleared.Source != audit.SourceAPI {
		t.Errorf("clear entry = %+v", cleared)
	}

	w := env.do(t, http.MethodGet, "/api/v1/audit?action=clear&limit=1", "", token)
	result = audit.ListResult{}
	decode(t, w, &result)
	if result.Total != 1 || result.Limit != 1 || result.Logs[0].Action != audit.ActionClear {
		t.Errorf("filtered audit = %+v", result)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/audit?limit=x", "", token); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}
