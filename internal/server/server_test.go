package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"campustasks/internal/app"
	"campustasks/internal/config"
	"campustasks/internal/domain"
	"campustasks/internal/events"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	App    *app.App
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, cfg *config.Config) (*testServer, func()) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	a, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Config: cfg, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	a.Accounts.HashCost = bcrypt.MinCost
	handler, err := New(Config{
		Engine:   a.Engine,
		Accounts: a.Accounts,
		Repo:     a.Repo,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowDevHeader: true},
		Logger:   a.Logger,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		App:    a,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			a.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func signup(t *testing.T, srv *testServer, name, email string) (UserResponse, map[string]string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/signup", map[string]any{
		"name": name, "email": email, "password": "secret1",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d: %s", res.StatusCode, string(data))
	}
	var out AuthResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	if out.Token == "" {
		t.Fatalf("expected token")
	}
	return out.User, map[string]string{"Authorization": "Bearer " + out.Token}
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func TestPostAcceptCompleteFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	alice, aliceAuth := signup(t, srv, "Alice Rao", "alice@campus.edu")
	bob, bobAuth := signup(t, srv, "Bob Das", "bob@campus.edu")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":       "Explain linked lists",
		"description": "20 minute call",
		"category":    "Concept Explanation",
		"price":       120,
		"deadline":    "Tonight",
	}, aliceAuth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Status != "open" || created.CreatedBy != alice.ID || created.CreatedByName != "Alice Rao" || created.PriceBracket != "100-150" {
		t.Fatalf("unexpected created task %+v", created)
	}
	taskURL := fmt.Sprintf("%s/v0/tasks/%d", srv.URL, created.ID)

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/accept", nil, aliceAuth)
	var cmd CommandResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &cmd) != nil || cmd.Outcome != "self_accept" {
		t.Fatalf("self accept: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/accept", nil, bobAuth)
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &cmd) != nil || cmd.Outcome != "applied" {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}
	if cmd.Task == nil || cmd.Task.AcceptedBy == nil || *cmd.Task.AcceptedBy != bob.ID || cmd.Task.AcceptedByName != "Bob Das" {
		t.Fatalf("acceptor not set: %+v", cmd.Task)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/accepted", nil, bobAuth)
	var list TaskListResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &list) != nil || len(list.Items) != 1 {
		t.Fatalf("my accepted: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/complete", nil, bobAuth)
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &cmd) != nil || cmd.Outcome != "applied" || cmd.Task.Status != "completed" {
		t.Fatalf("complete: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/stats", nil, bobAuth)
	var st StatsResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &st) != nil {
		t.Fatalf("stats: %d %s", res.StatusCode, string(data))
	}
	if st.CompletedByYou != 1 || st.Earnings != 120 || st.PendingTotal != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/history", nil, aliceAuth)
	var hist HistoryResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &hist) != nil || len(hist.Posted) != 1 || len(hist.Completed) != 0 {
		t.Fatalf("history: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/leaderboard", nil, aliceAuth)
	var board LeaderboardResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &board) != nil {
		t.Fatalf("leaderboard: %d %s", res.StatusCode, string(data))
	}
	if len(board.Items) != 2 || board.Items[0].UserID != bob.ID || board.Items[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", board.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_kind=task&limit=2", nil, aliceAuth)
	var evs paginatedEvents
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &evs) != nil {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	if len(evs.Items) != 2 || evs.Items[0].Type != events.TaskCompleted || evs.NextCursor == "" {
		t.Fatalf("unexpected events page %+v", evs)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_kind=task&cursor="+evs.NextCursor, nil, aliceAuth)
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &evs) != nil || len(evs.Items) != 1 || evs.Items[0].Type != events.TaskCreated {
		t.Fatalf("second events page: %d %s", res.StatusCode, string(data))
	}
}

func TestMarketplaceFiltersOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	if _, err := srv.App.SeedDemo(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	headers := map[string]string{"X-User-Id": "demo-alex"}
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, headers)
	var list TaskListResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &list) != nil || len(list.Items) != 5 {
		t.Fatalf("default marketplace: %d %s", res.StatusCode, string(data))
	}
	for _, item := range list.Items {
		if item.Status != "open" {
			t.Fatalf("non-open task in default view: %+v", item)
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?category=Random+%2F+Other&price=%3C100", nil, headers)
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &list) != nil || len(list.Items) != 1 || list.Items[0].ID != 6 {
		t.Fatalf("filtered marketplace: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?scope=posted", nil, map[string]string{"X-User-Id": "demo-sam"})
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &list) != nil || len(list.Items) != 1 || list.Items[0].Status != "completed" {
		t.Fatalf("posted scope: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?price=cheap", nil, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown bracket, got %d: %s", res.StatusCode, string(data))
	}
}

func TestErrorsUseEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Code != "unauthorized" {
		t.Fatalf("expected unauthorized, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/signup", map[string]any{
		"name": "Ana", "email": "ana@campus.edu", "password": "abc",
	}, nil)
	body := decodeError(t, data)
	if res.StatusCode != http.StatusBadRequest || body.Code != "validation_failed" || body.Message != "Password must be at least 6 characters" {
		t.Fatalf("short password: %d %s", res.StatusCode, string(data))
	}

	_, auth := signup(t, srv, "Ana", "ana@campus.edu")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{"email": "ana@campus.edu", "password": "wrong-one"}, nil)
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Message != "Invalid email or password" {
		t.Fatalf("bad login: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "t", "description": "d", "price": 0, "deadline": "x",
	}, auth)
	body = decodeError(t, data)
	if res.StatusCode != http.StatusBadRequest || body.Code != "validation_failed" || body.Details["field"] != "price" {
		t.Fatalf("zero price: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/999", nil, auth)
	if res.StatusCode != http.StatusNotFound || decodeError(t, data).Code != "not_found" {
		t.Fatalf("missing task: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/999/accept", nil, auth)
	var cmd CommandResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &cmd) != nil || cmd.Outcome != "not_found" || cmd.Task != nil {
		t.Fatalf("accept missing: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/me/bio", map[string]any{"bio": strings.Repeat("b", 301)}, auth)
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Message != "Bio must be at most 300 characters" {
		t.Fatalf("long bio: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/me/bio", map[string]any{"bio": "Third year"}, auth)
	var me UserResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &me) != nil || me.Bio != "Third year" {
		t.Fatalf("bio update: %d %s", res.StatusCode, string(data))
	}
}

func TestHTTPSignupDoesNotTouchCLISession(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	signup(t, srv, "Ana", "ana@campus.edu")
	cur, err := srv.App.Accounts.Current(context.Background())
	if err != nil || cur != nil {
		t.Fatalf("expected no session, got %+v %v", cur, err)
	}
}

func TestStrictCompleteOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	_, auth := signup(t, srv, "Ana", "ana@campus.edu")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "t", "description": "d", "price": 20, "deadline": "x",
	}, auth)
	var created TaskResponse
	if res.StatusCode != http.StatusCreated || json.Unmarshal(data, &created) != nil {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, fmt.Sprintf("%s/v0/tasks/%d/complete", srv.URL, created.ID), nil, auth)
	var cmd CommandResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &cmd) != nil || cmd.Outcome != "not_accepted" || cmd.Task.Status != "open" {
		t.Fatalf("strict complete: %d %s", res.StatusCode, string(data))
	}
}

func TestOpenAPIIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "bearerAuth") {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	u := domain.User{ID: "42", Name: "Ana", Email: "ana@campus.edu"}
	token, err := issueToken(testSecret, u, time.Now(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	p, err := authenticateJWT(token, testSecret)
	if err != nil || p.UserID != "42" {
		t.Fatalf("authenticate: %+v %v", p, err)
	}
	if _, err := authenticateJWT(token, "other-secret"); err == nil {
		t.Fatalf("expected signature failure")
	}
	expired, _ := issueToken(testSecret, u, time.Now().Add(-2*time.Hour), time.Hour)
	if _, err := authenticateJWT(expired, testSecret); err == nil {
		t.Fatalf("expected expiry failure")
	}
}

func TestWebhookDelivery(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	var mu sync.Mutex
	var got []http.Header
	var bodies []webhookEvent
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hookSrv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		got = append(got, r.Header.Clone())
		bodies = append(bodies, evt)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})}
	go hookSrv.Serve(ln)
	defer hookSrv.Shutdown(context.Background())

	ctx := context.Background()
	hooks := []config.WebhookConfig{{URL: "http://" + ln.Addr().String(), Events: []string{events.TaskAccepted}, Secret: "s3cret"}}
	d := newWebhookDispatcher(srv.App.Repo, hooks, zaptest.NewLogger(t))
	d.cursorFor(ctx, 0, hooks[0])

	eng := srv.App.Engine
	task := mustCreate(t, srv, "author")
	if _, _, err := eng.AcceptTask(ctx, task.ID, "taker"); err != nil {
		t.Fatal(err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Get("X-CampusTasks-Event") != events.TaskAccepted || got[0].Get("X-CampusTasks-Secret") != "s3cret" || got[0].Get("X-CampusTasks-Delivery") == "" {
		t.Fatalf("unexpected headers %v", got[0])
	}
	if bodies[0].ActorID != "taker" || bodies[0].EntityKind != "task" {
		t.Fatalf("unexpected body %+v", bodies[0])
	}
	latest, err := srv.App.Repo.LatestEventID(ctx)
	if err != nil || d.cursors[0] != latest {
		t.Fatalf("cursor %d not advanced to %d (%v)", d.cursors[0], latest, err)
	}
}

func mustCreate(t *testing.T, srv *testServer, actor string) domain.Task {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "hook me", "description": "d", "price": 45.5, "deadline": "x",
	}, map[string]string{"X-User-Id": actor})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}
	task, err := srv.App.Engine.GetTask(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	return task
}
