package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/events"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/refdata"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/service"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store/memory"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
	"github.com/BrandonDHaskell/gatelog/internal/httpapi"
	"github.com/BrandonDHaskell/gatelog/internal/metrics"
)

const testSecret = "test-secret"

// newTestServer wires up the full dependency graph over an in-memory store
// and returns an httptest.Server whose URL can be hit with a plain
// http.Client. A non-empty secret turns on bearer auth.
func newTestServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	return newTestServerWithStore(t, secret, memory.New())
}

func newTestServerWithStore(t *testing.T, secret string, st store.LedgerStore) *httptest.Server {
	t.Helper()

	tables, err := refdata.Default()
	if err != nil {
		t.Fatalf("refdata: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := zap.NewNop()

	ledger, err := service.NewLedgerService(context.Background(), service.LedgerDependencies{
		Store:     st,
		Tables:    tables,
		Publisher: events.Noop{},
		Metrics:   m,
		Logger:    logger,
		Exporter:  service.NewExporter(service.ExportConfig{Location: time.UTC}),
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger,
		Addr:           ":0",
		Ledger:         ledger,
		Decisions:      service.NewDecisionDesk(ledger),
		Lookups:        service.NewLookupDesk(),
		Resolver:       service.NewResolver(tables),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		JWTSecret:      secret,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, b)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	expectStatus(t, resp, status)
	body := decode[map[string]string](t, resp)
	if body["error"] != code {
		t.Fatalf("expected error=%s, got %q (%s)", code, body["error"], body["message"])
	}
}

// ── Lookup ───────────────────────────────────────────────────────────────────

func TestLookup_RegisteredVehicle(t *testing.T) {
	ts := newTestServer(t, "")

	resp := do(t, http.MethodPost, ts.URL+"/v1/lookups", "", map[string]string{
		"license_plate": " tg01ab1234 ",
		"purpose":       "event attendee",
	})
	expectStatus(t, resp, http.StatusOK)

	res := decode[types.LookupResult](t, resp)
	if res.ID == "" {
		t.Error("expected a lookup id")
	}
	if res.LicensePlate != "TG01AB1234" {
		t.Errorf("expected normalized plate, got %q", res.LicensePlate)
	}
	if res.Vehicle == nil || res.Vehicle.OwnerName != "John Doe" {
		t.Errorf("expected John Doe's vehicle, got %+v", res.Vehicle)
	}
	if len(res.Authorities) != 2 {
		t.Fatalf("expected 2 authorities, got %d", len(res.Authorities))
	}
	if res.SelectedAuthorityID != "" {
		t.Errorf("expected no preselection with two authorities, got %q", res.SelectedAuthorityID)
	}
}

func TestLookup_InputErrors_400(t *testing.T) {
	ts := newTestServer(t, "")

	resp := do(t, http.MethodPost, ts.URL+"/v1/lookups", "", map[string]string{"license_plate": "  "})
	expectErrorCode(t, resp, http.StatusBadRequest, "input_required")

	resp = do(t, http.MethodPost, ts.URL+"/v1/lookups", "", map[string]string{"license_plate": "TG1AB1234"})
	expectErrorCode(t, resp, http.StatusBadRequest, "invalid_format")
}

func TestLookup_InvalidJSON_400(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/v1/lookups", "application/json", strings.NewReader(`not json at all`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	expectErrorCode(t, resp, http.StatusBadRequest, "bad_json")
}

func TestValidatePlate(t *testing.T) {
	ts := newTestServer(t, "")

	resp := do(t, http.MethodPost, ts.URL+"/v1/plates/validate", "", map[string]string{"plate": "ka03mn4455"})
	expectStatus(t, resp, http.StatusOK)
	got := decode[map[string]any](t, resp)
	if got["plate"] != "KA03MN4455" || got["valid"] != true {
		t.Errorf("unexpected result: %v", got)
	}

	resp = do(t, http.MethodPost, ts.URL+"/v1/plates/validate", "", map[string]string{"plate": "KA3MN4455"})
	got = decode[map[string]any](t, resp)
	if got["valid"] != false {
		t.Errorf("expected invalid, got %v", got)
	}
}

// ── Entries ──────────────────────────────────────────────────────────────────

func lookup(t *testing.T, ts *httptest.Server, token, plate, purpose string) types.LookupResult {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/v1/lookups", token, map[string]string{
		"license_plate": plate,
		"purpose":       purpose,
	})
	expectStatus(t, resp, http.StatusOK)
	return decode[types.LookupResult](t, resp)
}

func TestEntry_ApproveExitConfirm(t *testing.T) {
	ts := newTestServer(t, "")

	res := lookup(t, ts, "", "TG01AB1234", "Event Attendee")

	resp := do(t, http.MethodPost, ts.URL+"/v1/entries", "", map[string]any{
		"lookup_id":    res.ID,
		"num_people":   3,
		"authority_id": "A003",
	})
	expectStatus(t, resp, http.StatusCreated)
	entry := decode[types.LogEntry](t, resp)

	if entry.Status != types.StatusInside {
		t.Errorf("expected inside, got %q", entry.Status)
	}
	if entry.ApprovedBy != "Ms. Carol Davis" {
		t.Errorf("expected approvedBy=Ms. Carol Davis, got %q", entry.ApprovedBy)
	}
	if entry.Purpose != "Event Attendee" || entry.NumPeople != 3 {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.SecurityPersonnelID != service.DefaultOperatorID {
		t.Errorf("expected default operator, got %q", entry.SecurityPersonnelID)
	}

	// The lookup is spent once approved.
	resp = do(t, http.MethodPost, ts.URL+"/v1/entries", "", map[string]any{
		"lookup_id":    res.ID,
		"authority_id": "A003",
	})
	expectErrorCode(t, resp, http.StatusConflict, "approval_requires_lookup")

	resp = do(t, http.MethodPost, ts.URL+"/v1/entries/"+entry.ID+"/exit", "", nil)
	expectStatus(t, resp, http.StatusAccepted)
	pending := decode[types.PendingDecision](t, resp)
	if pending.Title != "Confirm Exit" {
		t.Errorf("expected Confirm Exit, got %q", pending.Title)
	}

	// Nothing moves until the decision is confirmed.
	inside := decode[[]types.LogEntry](t, do(t, http.MethodGet, ts.URL+"/v1/entries/inside", "", nil))
	if len(inside) != 1 {
		t.Fatalf("expected 1 inside before confirm, got %d", len(inside))
	}

	resp = do(t, http.MethodPost, ts.URL+"/v1/decisions/"+pending.ID, "", map[string]bool{"confirmed": true})
	expectStatus(t, resp, http.StatusOK)
	out := decode[types.DecisionOutcome](t, resp)
	if !out.Confirmed || !out.Applied {
		t.Errorf("expected confirmed and applied, got %+v", out)
	}

	inside = decode[[]types.LogEntry](t, do(t, http.MethodGet, ts.URL+"/v1/entries/inside", "", nil))
	if len(inside) != 0 {
		t.Errorf("expected no vehicles inside, got %d", len(inside))
	}
	history := decode[[]types.LogEntry](t, do(t, http.MethodGet, ts.URL+"/v1/history", "", nil))
	if len(history) != 1 || history[0].ID != entry.ID || history[0].ExitTime == nil {
		t.Fatalf("expected the exited entry in history, got %+v", history)
	}

	resp = do(t, http.MethodPost, ts.URL+"/v1/decisions/"+pending.ID, "", map[string]bool{"confirmed": true})
	expectErrorCode(t, resp, http.StatusNotFound, "decision_not_found")
}

func TestEntry_DefaultsToOnePerson(t *testing.T) {
	ts := newTestServer(t, "")

	res := lookup(t, ts, "", "DL05CD5678", "Delivery")
	if res.SelectedAuthorityID != "A004" {
		t.Fatalf("expected A004 preselected, got %q", res.SelectedAuthorityID)
	}

	resp := do(t, http.MethodPost, ts.URL+"/v1/entries", "", map[string]any{
		"lookup_id":    res.ID,
		"authority_id": res.SelectedAuthorityID,
	})
	expectStatus(t, resp, http.StatusCreated)
	if e := decode[types.LogEntry](t, resp); e.NumPeople != 1 {
		t.Errorf("expected num_people=1, got %d", e.NumPeople)
	}
}

// slowStore delays inserts the way a disk-backed store does, which widens
// the window between checking a lookup and recording the entry.
type slowStore struct {
	*memory.LedgerStore
}

func (s slowStore) AppendInside(ctx context.Context, e types.LogEntry) error {
	time.Sleep(20 * time.Millisecond)
	return s.LedgerStore.AppendInside(ctx, e)
}

func TestEntry_ConcurrentApprovalsSpendLookupOnce(t *testing.T) {
	ts := newTestServerWithStore(t, "", slowStore{memory.New()})
	res := lookup(t, ts, "", "TG01AB1234", "Delivery")

	body, err := json.Marshal(map[string]any{
		"lookup_id":    res.ID,
		"authority_id": res.SelectedAuthorityID,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	const attempts = 4
	statuses := make([]int, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/v1/entries", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Errorf("post: %v", err)
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	created, conflicts := 0, 0
	for _, code := range statuses {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		}
	}
	if created != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 created and %d conflicts, got statuses %v", attempts-1, statuses)
	}

	inside := decode[[]types.LogEntry](t, do(t, http.MethodGet, ts.URL+"/v1/entries/inside", "", nil))
	if len(inside) != 1 {
		t.Errorf("expected exactly 1 vehicle inside, got %d", len(inside))
	}
}

func TestEntry_ApproveWithoutLookup_409(t *testing.T) {
	ts := newTestServer(t, "")

	resp := do(t, http.MethodPost, ts.URL+"/v1/entries", "", map[string]any{
		"lookup_id":    "no-such-lookup",
		"num_people":   1,
		"authority_id": "A001",
	})
	expectErrorCode(t, resp, http.StatusConflict, "approval_requires_lookup")
}

func TestEntry_ApproveValidation(t *testing.T) {
	ts := newTestServer(t, "")
	res := lookup(t, ts, "", "TG01AB1234", "Event Attendee")

	resp := do(t, http.MethodPost, ts.URL+"/v1/entries", "", map[string]any{
		"lookup_id":  res.ID,
		"num_people": 2,
	})
	expectErrorCode(t, resp, http.StatusUnprocessableEntity, "authority_not_selected")

	resp = do(t, http.MethodPost, ts.URL+"/v1/entries", "", map[string]any{
		"lookup_id":    res.ID,
		"num_people":   0,
		"authority_id": "A001",
	})
	expectErrorCode(t, resp, http.StatusBadRequest, "invalid_num_people")

	// Failed approvals leave the lookup usable.
	resp = do(t, http.MethodPost, ts.URL+"/v1/entries", "", map[string]any{
		"lookup_id":    res.ID,
		"num_people":   2,
		"authority_id": "A001",
	})
	expectStatus(t, resp, http.StatusCreated)
}

// ── History ──────────────────────────────────────────────────────────────────

func TestHistory_ExportEmpty_404(t *testing.T) {
	ts := newTestServer(t, "")

	resp := do(t, http.MethodGet, ts.URL+"/v1/history/export", "", nil)
	expectErrorCode(t, resp, http.StatusNotFound, "export_empty")
}

func TestHistory_ExportAndClear(t *testing.T) {
	ts := newTestServer(t, "")

	res := lookup(t, ts, "", "UP14YZ9012", "Maintenance Visit")
	entry := decode[types.LogEntry](t, do(t, http.MethodPost, ts.URL+"/v1/entries", "", map[string]any{
		"lookup_id":    res.ID,
		"authority_id": "A002",
	}))
	pending := decode[types.PendingDecision](t, do(t, http.MethodPost, ts.URL+"/v1/entries/"+entry.ID+"/exit", "", nil))
	expectStatus(t, do(t, http.MethodPost, ts.URL+"/v1/decisions/"+pending.ID, "", map[string]bool{"confirmed": true}), http.StatusOK)

	resp := do(t, http.MethodGet, ts.URL+"/v1/history/export", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != service.ExportContentType {
		t.Errorf("unexpected content type %q", ct)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="vehicle_history_`) || !strings.HasSuffix(cd, `.xlsx"`) {
		t.Errorf("unexpected content disposition %q", cd)
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("expected a zip-based xlsx body")
	}

	resp = do(t, http.MethodDelete, ts.URL+"/v1/history", "", nil)
	expectStatus(t, resp, http.StatusAccepted)
	clearReq := decode[types.PendingDecision](t, resp)

	// Cancelling leaves history alone.
	out := decode[types.DecisionOutcome](t, do(t, http.MethodPost, ts.URL+"/v1/decisions/"+clearReq.ID, "", map[string]bool{"confirmed": false}))
	if out.Confirmed || out.Applied {
		t.Errorf("expected a cancelled outcome, got %+v", out)
	}
	history := decode[[]types.LogEntry](t, do(t, http.MethodGet, ts.URL+"/v1/history", "", nil))
	if len(history) != 1 {
		t.Fatalf("expected history untouched, got %d", len(history))
	}

	clearReq = decode[types.PendingDecision](t, do(t, http.MethodDelete, ts.URL+"/v1/history", "", nil))
	pendingList := decode[[]types.PendingDecision](t, do(t, http.MethodGet, ts.URL+"/v1/decisions", "", nil))
	if len(pendingList) != 1 || pendingList[0].ID != clearReq.ID {
		t.Fatalf("expected the clear request pending, got %+v", pendingList)
	}
	expectStatus(t, do(t, http.MethodPost, ts.URL+"/v1/decisions/"+clearReq.ID, "", map[string]bool{"confirmed": true}), http.StatusOK)

	history = decode[[]types.LogEntry](t, do(t, http.MethodGet, ts.URL+"/v1/history", "", nil))
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d", len(history))
	}
}

// ── Reference / enrichment / ops ─────────────────────────────────────────────

func TestReference_Tables(t *testing.T) {
	ts := newTestServer(t, "")

	auths := decode[[]types.Authority](t, do(t, http.MethodGet, ts.URL+"/v1/reference/authorities", "", nil))
	if len(auths) != 4 {
		t.Errorf("expected 4 authorities, got %d", len(auths))
	}
	purposes := decode[[]types.Purpose](t, do(t, http.MethodGet, ts.URL+"/v1/reference/purposes", "", nil))
	if len(purposes) != 5 {
		t.Errorf("expected 5 purposes, got %d", len(purposes))
	}
	vehicles := decode[[]types.RegisteredVehicle](t, do(t, http.MethodGet, ts.URL+"/v1/reference/vehicles", "", nil))
	if len(vehicles) != 3 {
		t.Errorf("expected 3 vehicles, got %d", len(vehicles))
	}
}

func TestEnrich_Unconfigured_503(t *testing.T) {
	ts := newTestServer(t, "")

	resp := do(t, http.MethodPost, ts.URL+"/v1/enrich/purpose", "", map[string]string{"purpose": "fix the lift"})
	expectErrorCode(t, resp, http.StatusServiceUnavailable, "enrichment_unavailable")

	resp, err := http.Post(ts.URL+"/v1/enrich/plate-scan", "image/jpeg", bytes.NewReader([]byte{0xff, 0xd8}))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	expectErrorCode(t, resp, http.StatusServiceUnavailable, "enrichment_unavailable")
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, "")

	expectStatus(t, do(t, http.MethodGet, ts.URL+"/healthz", "", nil), http.StatusOK)
	lookup(t, ts, "", "TG01AB1234", "Delivery")

	resp := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `gatelog_lookups_total{outcome="resolved"} 1`) {
		t.Errorf("expected a resolved lookup counted, got:\n%s", body)
	}
}

// ── Auth ─────────────────────────────────────────────────────────────────────

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestAuth_RequiresBearerToken(t *testing.T) {
	ts := newTestServer(t, testSecret)

	resp := do(t, http.MethodGet, ts.URL+"/v1/entries/inside", "", nil)
	expectErrorCode(t, resp, http.StatusUnauthorized, "unauthorized")

	resp = do(t, http.MethodGet, ts.URL+"/v1/entries/inside", signToken(t, "wrong-secret", "guard-7"), nil)
	expectErrorCode(t, resp, http.StatusUnauthorized, "unauthorized")

	// Health stays open.
	expectStatus(t, do(t, http.MethodGet, ts.URL+"/healthz", "", nil), http.StatusOK)
}

func TestAuth_SubjectRecordedAsOperator(t *testing.T) {
	ts := newTestServer(t, testSecret)
	token := signToken(t, testSecret, "guard-7")

	res := lookup(t, ts, token, "TG01AB1234", "Meeting with Director")
	resp := do(t, http.MethodPost, ts.URL+"/v1/entries", token, map[string]any{
		"lookup_id":    res.ID,
		"authority_id": "A001",
	})
	expectStatus(t, resp, http.StatusCreated)
	if e := decode[types.LogEntry](t, resp); e.SecurityPersonnelID != "guard-7" {
		t.Errorf("expected operator guard-7, got %q", e.SecurityPersonnelID)
	}
}
