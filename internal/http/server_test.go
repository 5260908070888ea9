package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmehdipour/sms-inbox/internal/config"
	"github.com/jmehdipour/sms-inbox/internal/db"
	"github.com/jmehdipour/sms-inbox/internal/model"
	"github.com/jmehdipour/sms-inbox/internal/signature"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testSecret = "testsecret"

type testEnv struct {
	t    *testing.T
	srv  http.Handler
	dbx  *sqlx.DB
	reg  *prometheus.Registry
	logs *observer.ObservedLogs
	gate *signature.Gate
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Webhook.Secret = secret
	return newTestEnvWith(t, cfg, nil)
}

func newTestEnvWith(t *testing.T, cfg config.Config, rds *redis.Client) *testEnv {
	t.Helper()
	secret := cfg.Webhook.Secret

	dsn := filepath.Join(t.TempDir(), "inbox.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	dbx, err := db.NewConnection(db.DriverSQLite, dsn, db.Opts{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })
	require.NoError(t, db.Migrate(context.Background(), dbx))

	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	srv := NewServer(cfg, dbx, rds, zap.New(core), reg)

	return &testEnv{t: t, srv: srv.Handler(), dbx: dbx, reg: reg, logs: logs, gate: signature.NewGate(secret)}
}

func (e *testEnv) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, r)
	return w
}

func (e *testEnv) postSigned(body string) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, "/webhook", body, map[string]string{"X-Signature": e.gate.Sign([]byte(body))})
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func payload(id, from, ts, text string) string {
	return fmt.Sprintf(`{"message_id":%q,"from":%q,"to":"+15557654321","ts":%q,"text":%q}`, id, from, ts, text)
}

func TestWebhook_Scenario_CreateDuplicateAndList(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testSecret)
	body := payload("m1", "+15551234567", "2024-01-01T00:00:00Z", "hello")

	// When the message is posted twice with a valid signature
	first := env.postSigned(body)
	second := env.postSigned(body)

	// Then both answers are 200 ok
	req.Equal(http.StatusOK, first.Code)
	req.JSONEq(`{"status":"ok"}`, first.Body.String())
	req.Equal(http.StatusOK, second.Code)
	req.JSONEq(`{"status":"ok"}`, second.Body.String())

	// And the log events distinguish created from duplicate
	events := env.logs.FilterField(zap.String("path", "/webhook")).All()
	req.Len(events, 2)
	req.Equal(false, events[0].ContextMap()["dup"])
	req.Equal("created", events[0].ContextMap()["result"])
	req.Equal(true, events[1].ContextMap()["dup"])
	req.Equal("duplicate", events[1].ContextMap()["result"])
	req.Equal("m1", events[1].ContextMap()["message_id"])
	req.NotEmpty(events[0].ContextMap()["request_id"])

	// And the listing filtered by sender holds exactly one record
	w := env.do(http.MethodGet, "/messages?from=%2B15551234567", "", nil)
	req.Equal(http.StatusOK, w.Code)
	page := decode[model.Page](t, w)
	req.Equal(1, page.Total)
	req.Equal(50, page.Limit)
	req.Equal(0, page.Offset)
	req.Len(page.Data, 1)
	req.Equal("m1", page.Data[0].MessageID)
	req.Equal("hello", *page.Data[0].Text)
	req.NotEmpty(page.Data[0].CreatedAt)

	// And an unescaped '+' in the query works the same way
	w = env.do(http.MethodGet, "/messages?from=+15551234567", "", nil)
	req.Equal(1, decode[model.Page](t, w).Total)

	// And counters saw one creation and one duplicate
	req.NoError(testutil.GatherAndCompare(env.reg, strings.NewReader(`
# HELP webhook_requests_total Total webhook requests by outcome
# TYPE webhook_requests_total counter
webhook_requests_total{result="created"} 1
webhook_requests_total{result="duplicate"} 1
`), "webhook_requests_total"))
}

func TestWebhook_OversizeTextRejected(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testSecret)

	w := env.postSigned(payload("m-big", "+15551234567", "2024-01-01T00:00:00Z", strings.Repeat("a", 4097)))

	req.Equal(http.StatusUnprocessableEntity, w.Code)
	resp := decode[map[string]string](t, w)
	req.Contains(resp["detail"], "text")

	stats := decode[model.Stats](t, env.do(http.MethodGet, "/stats", "", nil))
	req.Zero(stats.TotalMessages)
}

func TestWebhook_OverlongIdentifierRejected(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testSecret)

	w := env.postSigned(payload("m-long-ts", "+15551234567", strings.Repeat("2", 65), "hi"))

	req.Equal(http.StatusUnprocessableEntity, w.Code)
	req.Contains(decode[map[string]string](t, w)["detail"], "ts")
}

func TestWebhook_OversizeBodyCounted(t *testing.T) {
	req := require.New(t)
	cfg, err := config.Load("")
	req.NoError(err)
	cfg.Webhook.Secret = testSecret
	cfg.HTTP.BodyLimit = "1K"
	env := newTestEnvWith(t, cfg, nil)

	w := env.postSigned(payload("m-huge", "+15551234567", "2024-01-01T00:00:00Z", strings.Repeat("a", 2048)))

	req.Equal(http.StatusRequestEntityTooLarge, w.Code)
	events := env.logs.FilterField(zap.String("path", "/webhook")).All()
	req.Len(events, 1)
	req.Equal("too_large", events[0].ContextMap()["result"])
	req.NoError(testutil.GatherAndCompare(env.reg, strings.NewReader(`
# HELP webhook_requests_total Total webhook requests by outcome
# TYPE webhook_requests_total counter
webhook_requests_total{result="too_large"} 1
`), "webhook_requests_total"))
}

func TestWebhook_RateLimitedCounted(t *testing.T) {
	req := require.New(t)
	cfg, err := config.Load("")
	req.NoError(err)
	cfg.Webhook.Secret = testSecret
	cfg.RateLimit.RPS = 1
	cfg.RateLimit.Window = time.Hour
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rds.Close() })
	env := newTestEnvWith(t, cfg, rds)

	req.Equal(http.StatusOK, env.postSigned(payload("m1", "+15551234567", "2024-01-01T00:00:00Z", "a")).Code)
	w := env.postSigned(payload("m2", "+15551234567", "2024-01-01T00:00:01Z", "b"))

	req.Equal(http.StatusTooManyRequests, w.Code)
	req.NotEmpty(w.Header().Get("Retry-After"))
	req.NoError(testutil.GatherAndCompare(env.reg, strings.NewReader(`
# HELP webhook_requests_total Total webhook requests by outcome
# TYPE webhook_requests_total counter
webhook_requests_total{result="created"} 1
webhook_requests_total{result="rate_limited"} 1
`), "webhook_requests_total"))

	stats := decode[model.Stats](t, env.do(http.MethodGet, "/stats", "", nil))
	req.Equal(1, stats.TotalMessages)
}

func TestWebhook_SignatureFailures(t *testing.T) {
	env := newTestEnv(t, testSecret)
	body := payload("m1", "+15551234567", "2024-01-01T00:00:00Z", "hello")
	altered := strings.Replace(body, "hello", "hellp", 1)

	tests := []struct {
		name   string
		body   string
		header map[string]string
	}{
		{"missing header", body, nil},
		{"garbage signature", body, map[string]string{"X-Signature": "123"}},
		{"body altered after signing", altered, map[string]string{"X-Signature": env.gate.Sign([]byte(body))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			w := env.do(http.MethodPost, "/webhook", tt.body, tt.header)
			req.Equal(http.StatusUnauthorized, w.Code)
			req.JSONEq(`{"error":"invalid signature"}`, w.Body.String())
		})
	}

	stats := decode[model.Stats](t, env.do(http.MethodGet, "/stats", "", nil))
	require.Zero(t, stats.TotalMessages)
}

func TestWebhook_SignatureCheckedBeforeSchema(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodPost, "/webhook", `{"broken"`, map[string]string{"X-Signature": "nope"})

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook_NoSecretFailsClosed(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "")
	body := payload("m1", "+15551234567", "2024-01-01T00:00:00Z", "hello")

	w := env.do(http.MethodPost, "/webhook", body, map[string]string{"X-Signature": signature.NewGate("").Sign([]byte(body))})
	req.Equal(http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/health/ready", "", nil)
	req.Equal(http.StatusServiceUnavailable, w.Code)
}

func TestMessages_PaginationAndFilters(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testSecret)

	for i := 0; i < 120; i++ {
		from := "+100"
		if i%2 == 1 {
			from = "+200"
		}
		w := env.postSigned(payload(fmt.Sprintf("m%03d", i), from, fmt.Sprintf("2024-01-01T00:%02d:00Z", i%60), "text"))
		req.Equal(http.StatusOK, w.Code)
	}

	p1 := decode[model.Page](t, env.do(http.MethodGet, "/messages?limit=50&offset=0", "", nil))
	p2 := decode[model.Page](t, env.do(http.MethodGet, "/messages?limit=50&offset=50", "", nil))
	both := decode[model.Page](t, env.do(http.MethodGet, "/messages?limit=100&offset=0", "", nil))
	req.Equal(120, p1.Total)
	req.Equal(both.Data, append(append([]model.Message{}, p1.Data...), p2.Data...))

	// from AND since
	w := env.do(http.MethodGet, "/messages?from=%2B100&since=2024-01-01T00:30:00Z&limit=100", "", nil)
	page := decode[model.Page](t, w)
	req.Equal(30, page.Total)
	for _, m := range page.Data {
		req.Equal("+100", m.From)
		req.GreaterOrEqual(m.TS, "2024-01-01T00:30:00Z")
	}
}

func TestMessages_InvalidPagination(t *testing.T) {
	env := newTestEnv(t, testSecret)

	for _, target := range []string{
		"/messages?limit=0",
		"/messages?limit=101",
		"/messages?limit=abc",
		"/messages?offset=-1",
		"/messages?offset=x",
	} {
		t.Run(target, func(t *testing.T) {
			w := env.do(http.MethodGet, target, "", nil)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		})
	}
}

func TestStats_Endpoint(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testSecret)

	env.postSigned(payload("a", "+100", "2024-01-02T00:00:00Z", "x"))
	env.postSigned(payload("b", "+100", "2024-01-01T00:00:00Z", "y"))
	env.postSigned(payload("c", "+200", "2024-01-03T00:00:00Z", "z"))
	env.postSigned(payload("a", "+300", "2030-01-01T00:00:00Z", "dup"))

	w := env.do(http.MethodGet, "/stats", "", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{
		"total_messages": 3,
		"senders_count": 2,
		"messages_per_sender": [{"from": "+100", "count": 2}, {"from": "+200", "count": 1}],
		"first_message_ts": "2024-01-01T00:00:00Z",
		"last_message_ts": "2024-01-03T00:00:00Z"
	}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodGet, "/health/live", "", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"status":"live"}`, w.Body.String())

	w = env.do(http.MethodGet, "/health/ready", "", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"status":"ready"}`, w.Body.String())

	// store gone → unready
	req.NoError(env.dbx.Close())
	w = env.do(http.MethodGet, "/health/ready", "", nil)
	req.Equal(http.StatusServiceUnavailable, w.Code)
}

func TestMetrics_Endpoint(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testSecret)

	env.do(http.MethodGet, "/health/live", "", nil)
	env.do(http.MethodPost, "/webhook", "{}", nil)

	w := env.do(http.MethodGet, "/metrics", "", nil)
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `http_requests_total{method="GET",path="/health/live",status="200"} 1`)
	req.Contains(w.Body.String(), `webhook_requests_total{result="invalid_signature"} 1`)
}
