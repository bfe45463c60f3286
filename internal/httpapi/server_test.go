package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Rollcall/internal/httpapi"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/store/memory"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/vision"
)

var testNow = time.Date(2026, 2, 15, 9, 15, 0, 0, time.Local)

// blockingScanner holds every scan until the run is stopped.
type blockingScanner struct{}

func (blockingScanner) Scan(ctx context.Context) ([]vision.Sighting, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type testEnv struct {
	ts    *httptest.Server
	store *memory.Store
}

// newTestServer wires the full dependency graph over the memory store.
// withMonitor adds a monitor whose scans block until stopped.
func newTestServer(t *testing.T, withMonitor bool) testEnv {
	t.Helper()

	ms := memory.New().WithNow(func() time.Time { return testNow })
	gate, err := service.NewGate(service.GateConfig{Store: ms, Thresholds: service.DefaultThresholds()})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	deps := httpapi.Dependencies{
		Addr:  ":0",
		Store: ms,
		Gate:  gate,
		Admin: service.NewAdminService(ms, nil),
		Now:   func() time.Time { return testNow },
	}
	if withMonitor {
		mg, _ := service.NewGate(service.GateConfig{Store: ms, Thresholds: service.DefaultThresholds()})
		m := service.NewMonitor(mg, blockingScanner{}, service.MonitorConfig{})
		t.Cleanup(m.Stop)
		deps.Monitor = m
	}

	ts := httptest.NewServer(httpapi.NewServer(deps).Handler())
	t.Cleanup(ts.Close)
	return testEnv{ts: ts, store: ms}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, body)
	}
}

// ── Identities ───────────────────────────────────────────────────────────────

func TestIdentities_AddListGet(t *testing.T) {
	env := newTestServer(t, false)

	resp := postJSON(t, env.ts.URL+"/v1/identities", `{"id":"101","name":"Ada"}`)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = postJSON(t, env.ts.URL+"/v1/identities", `{"id":"101","name":"Ada"}`)
	expectStatus(t, resp, http.StatusOK)
	var add struct{ Inserted bool }
	decode(t, resp, &add)
	if add.Inserted {
		t.Error("expected inserted=false on duplicate id")
	}

	resp, err := http.Get(env.ts.URL + "/v1/identities/101")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	var ident types.Identity
	decode(t, resp, &ident)
	if ident.ID != "101" || ident.Name != "Ada" {
		t.Errorf("unexpected identity %+v", ident)
	}

	resp, err = http.Get(env.ts.URL + "/v1/identities/999")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp, err = http.Get(env.ts.URL + "/v1/identities")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	var list struct{ Identities []types.Identity }
	decode(t, resp, &list)
	if len(list.Identities) != 1 {
		t.Errorf("expected 1 identity, got %d", len(list.Identities))
	}
}

func TestIdentities_Validation_400(t *testing.T) {
	env := newTestServer(t, false)

	tests := []struct {
		body string
		code string
	}{
		{`{"id":"1a","name":"Ada"}`, "invalid_identity_id"},
		{`{"id":"1","name":"Ada9"}`, "invalid_name"},
		{`{"id":"1","name":"Ada","extra":true}`, "bad_body"},
		{`not json`, "bad_body"},
	}
	for _, tt := range tests {
		resp := postJSON(t, env.ts.URL+"/v1/identities", tt.body)
		expectStatus(t, resp, http.StatusBadRequest)
		var e struct{ Error string }
		decode(t, resp, &e)
		if e.Error != tt.code {
			t.Errorf("%s: expected code %q, got %q", tt.body, tt.code, e.Error)
		}
	}
}

// ── Recognitions and attendance ──────────────────────────────────────────────

func TestRecognitions_MarkThenAlreadyMarked(t *testing.T) {
	env := newTestServer(t, false)
	if _, err := env.store.AddIdentity(context.Background(), "101", "Ada"); err != nil {
		t.Fatal(err)
	}

	var first, second types.Admission
	resp := postJSON(t, env.ts.URL+"/v1/recognitions", `{"candidate_id":"101","distance":40}`)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &first)
	resp = postJSON(t, env.ts.URL+"/v1/recognitions", `{"candidate_id":"101","distance":40}`)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &second)

	if first.Outcome != types.OutcomeMarked || second.Outcome != types.OutcomeAlreadyMarked {
		t.Fatalf("unexpected outcomes %q, %q", first.Outcome, second.Outcome)
	}
	if n := env.store.Calls("mark_attendance"); n != 1 {
		t.Errorf("expected 1 mark_attendance call, got %d", n)
	}

	resp, err := http.Get(env.ts.URL + "/v1/attendance?date=today")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	var att struct {
		Date    string
		Records []types.AttendanceRecord
	}
	decode(t, resp, &att)
	if att.Date != "2026-02-15" || len(att.Records) != 1 || att.Records[0].Time != "09:15:00" {
		t.Errorf("unexpected attendance %+v", att)
	}
}

func TestStats_CountsFromStore(t *testing.T) {
	env := newTestServer(t, false)
	ctx := context.Background()
	for _, p := range [][2]string{{"101", "Ada"}, {"102", "Grace"}} {
		if _, err := env.store.AddIdentity(ctx, p[0], p[1]); err != nil {
			t.Fatal(err)
		}
	}
	resp := postJSON(t, env.ts.URL+"/v1/recognitions", `{"candidate_id":"101","distance":40}`)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp, err := http.Get(env.ts.URL + "/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	var st types.Stats
	decode(t, resp, &st)
	want := types.Stats{Date: "2026-02-15", Identities: 2, TodayAttendance: 1, TotalAttendance: 1}
	if st != want {
		t.Errorf("got %+v, want %+v", st, want)
	}

	resp, err = http.Get(env.ts.URL + "/v1/stats?date=2026-02-14")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &st)
	if st.TodayAttendance != 0 || st.TotalAttendance != 1 {
		t.Errorf("unexpected stats for another date %+v", st)
	}

	resp, err = http.Get(env.ts.URL + "/v1/stats?date=soon")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestRecognitions_TentativeAndBadCrop(t *testing.T) {
	env := newTestServer(t, false)

	var adm types.Admission
	resp := postJSON(t, env.ts.URL+"/v1/recognitions", `{"candidate_id":"101","distance":60}`)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &adm)
	if adm.Outcome != types.OutcomeTentative {
		t.Errorf("expected tentative, got %q", adm.Outcome)
	}

	resp = postJSON(t, env.ts.URL+"/v1/recognitions", `{"candidate_id":"101","distance":90,"crop_jpeg":"!!"}`)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestAttendance_InvalidDate_400(t *testing.T) {
	env := newTestServer(t, false)
	resp, err := http.Get(env.ts.URL + "/v1/attendance?date=15-02-2026")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

// ── Admin ────────────────────────────────────────────────────────────────────

func TestAdmin_LoginAndPassword(t *testing.T) {
	env := newTestServer(t, false)

	resp := postJSON(t, env.ts.URL+"/v1/admin/login", `{"username":"admin","password":"admin123"}`)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = postJSON(t, env.ts.URL+"/v1/admin/login", `{"username":"admin","password":"x"}`)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = postJSON(t, env.ts.URL+"/v1/admin/password",
		`{"username":"admin","current_password":"admin123","new_password":"hunter2"}`)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = postJSON(t, env.ts.URL+"/v1/admin/login", `{"username":"admin","password":"hunter2"}`)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

// ── Sessions ─────────────────────────────────────────────────────────────────

func TestSessions_NoMonitor_503(t *testing.T) {
	env := newTestServer(t, false)
	resp := postJSON(t, env.ts.URL+"/v1/sessions", `{}`)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()
}

func TestSessions_StartConflictStop(t *testing.T) {
	env := newTestServer(t, true)

	resp := postJSON(t, env.ts.URL+"/v1/sessions", `{"mode":"session"}`)
	expectStatus(t, resp, http.StatusCreated)
	var st service.Status
	decode(t, resp, &st)
	if st.State != service.StateRunning || st.SessionID == "" {
		t.Fatalf("unexpected status %+v", st)
	}

	resp = postJSON(t, env.ts.URL+"/v1/sessions", `{}`)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, env.ts.URL+"/v1/sessions/current", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &st)
	if st.State != service.StateIdle {
		t.Errorf("expected idle after stop, got %q", st.State)
	}
}

// ── Protobuf negotiation ─────────────────────────────────────────────────────

func TestProtobuf_RequestAndResponse(t *testing.T) {
	env := newTestServer(t, false)

	body, err := structpb.NewStruct(map[string]any{"id": "7", "name": "Grace"})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := proto.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/v1/identities", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Accept", "application/x-protobuf")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Fatalf("expected protobuf response, got %q", ct)
	}
	out, _ := io.ReadAll(resp.Body)
	var st structpb.Struct
	if err := proto.Unmarshal(out, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !st.GetFields()["inserted"].GetBoolValue() || st.GetFields()["id"].GetStringValue() != "7" {
		t.Errorf("unexpected protobuf body %v", st.AsMap())
	}
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t, false)
	resp, err := http.Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}
