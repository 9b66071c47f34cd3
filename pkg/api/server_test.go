package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/chapters-api/internal/testutil"
	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/Sternrassler/chapters-api/pkg/chapters"
	"github.com/Sternrassler/chapters-api/pkg/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const testToken = "s3cret"

type testEnv struct {
	handler http.Handler
	server  *Server
	store   *testutil.MockStore
	mr      *miniredis.Miniredis
}

type envOption func(*Deps, *Config)

func withoutCache() envOption {
	return func(d *Deps, _ *Config) { d.Cache = nil }
}

func withLimit(n int) envOption {
	return func(d *Deps, _ *Config) {
		cfg := ratelimit.DefaultConfig()
		cfg.Limit = n
		d.Limiter = ratelimit.New(ratelimit.NewMemoryStore(cfg.Window, 0), cfg, zerolog.Nop())
	}
}

func withMaxUpload(n int64) envOption {
	return func(_ *Deps, c *Config) { c.MaxUploadBytes = n }
}

func newTestEnv(t *testing.T, seed int, opts ...envOption) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	testutil.Seed(t, db, seed)
	store := testutil.NewMockStore(db)

	mr, client := testutil.NewCache(t)
	deps := Deps{
		Store: store,
		Cache: cache.NewManager(client, zerolog.Nop()),
	}
	cfg := DefaultConfig()
	cfg.AdminToken = testToken
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	srv := NewServer(deps, cfg, zerolog.Nop())
	return &testEnv{handler: srv.Routes(), server: srv, store: store, mr: mr}
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func (e *testEnv) upload(t *testing.T, token string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := testutil.MultipartFile(t, "file", content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chapters", body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestRoot(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.get(t, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s, want status ok", rec.Body.String())
	}
}

func TestList_PopulatesThenServesFromCache(t *testing.T) {
	env := newTestEnv(t, 3)

	first := env.get(t, "/api/v1/chapters")
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", first.Code)
	}
	if got := first.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}

	var resp ListResponse
	if err := json.Unmarshal(first.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if resp.Total != 3 || len(resp.Chapters) != 3 {
		t.Errorf("list = total %d, %d chapters; want 3, 3", resp.Total, len(resp.Chapters))
	}

	cached, err := env.mr.Get(cache.ChaptersKey)
	if err != nil {
		t.Fatalf("cache key not populated: %v", err)
	}
	if cached != first.Body.String() {
		t.Error("cached document should equal the response body")
	}
	if ttl := env.mr.TTL(cache.ChaptersKey); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	second := env.get(t, "/api/v1/chapters?page=1&limit=10")
	if got := second.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("X-Cache = %q, want HIT", got)
	}
	if second.Body.String() != first.Body.String() {
		t.Error("cache hit body differs from original response")
	}
	if env.store.CountCalls() != 1 || env.store.FindCalls() != 1 {
		t.Errorf("store calls = count %d, find %d; want 1, 1", env.store.CountCalls(), env.store.FindCalls())
	}
}

func TestList_NonDefaultViewsBypassCache(t *testing.T) {
	tests := []string{
		"/api/v1/chapters?subject=Subject-1",
		"/api/v1/chapters?page=2",
		"/api/v1/chapters?limit=5",
		"/api/v1/chapters?isWeakChapter=false",
		"/api/v1/chapters?class=Class%2011&unit=Unit%201",
	}

	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			env := newTestEnv(t, 3)
			if err := env.mr.Set(cache.ChaptersKey, `{"total":99,"chapters":[]}`); err != nil {
				t.Fatal(err)
			}

			rec := env.get(t, target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := rec.Header().Get("X-Cache"); got != "BYPASS" {
				t.Errorf("X-Cache = %q, want BYPASS", got)
			}
			if strings.Contains(rec.Body.String(), `"total":99`) {
				t.Error("filtered request was served the default listing")
			}

			cached, _ := env.mr.Get(cache.ChaptersKey)
			if cached != `{"total":99,"chapters":[]}` {
				t.Errorf("filtered request overwrote the cache: %s", cached)
			}
		})
	}
}

func TestList_Filters(t *testing.T) {
	env := newTestEnv(t, 4)

	rec := env.get(t, "/api/v1/chapters?subject=Subject-2")
	var resp ListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if resp.Total != 1 || len(resp.Chapters) != 1 || resp.Chapters[0].Subject != "Subject-2" {
		t.Errorf("filtered list = %+v, want only Subject-2", resp)
	}

	rec = env.get(t, "/api/v1/chapters?limit=3&page=2")
	resp = ListResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if resp.Total != 4 || len(resp.Chapters) != 1 {
		t.Errorf("page 2 = total %d, %d chapters; want 4, 1", resp.Total, len(resp.Chapters))
	}
}

func TestList_InvalidQuery(t *testing.T) {
	env := newTestEnv(t, 0)

	for _, target := range []string{
		"/api/v1/chapters?page=abc",
		"/api/v1/chapters?page=0",
		"/api/v1/chapters?limit=-1",
		"/api/v1/chapters?limit=1000",
		"/api/v1/chapters?isWeakChapter=maybe",
		"/api/v1/chapters?page=4611686018427387904&limit=4",
		"/api/v1/chapters?page=9223372036854775807",
	} {
		t.Run(target, func(t *testing.T) {
			rec := env.get(t, target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if decodeError(t, rec) == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestList_CacheFailuresFallThrough(t *testing.T) {
	t.Run("corrupt entry", func(t *testing.T) {
		env := newTestEnv(t, 2)
		if err := env.mr.Set(cache.ChaptersKey, "{not json"); err != nil {
			t.Fatal(err)
		}

		rec := env.get(t, "/api/v1/chapters")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if rec.Header().Get("X-Cache") != "MISS" {
			t.Errorf("X-Cache = %q, want MISS", rec.Header().Get("X-Cache"))
		}
		cached, _ := env.mr.Get(cache.ChaptersKey)
		if !json.Valid([]byte(cached)) {
			t.Error("corrupt entry should be replaced by a valid document")
		}
	})

	t.Run("backend errors", func(t *testing.T) {
		env := newTestEnv(t, 2)
		env.mr.SetError("ERR injected failure")

		for i := 0; i < 8; i++ {
			rec := env.get(t, "/api/v1/chapters")
			if rec.Code != http.StatusOK {
				t.Fatalf("request %d status = %d, want 200", i, rec.Code)
			}
		}
	})

	t.Run("no cache", func(t *testing.T) {
		env := newTestEnv(t, 2, withoutCache())

		for i := 0; i < 2; i++ {
			rec := env.get(t, "/api/v1/chapters")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
		}
		if env.store.CountCalls() != 2 {
			t.Errorf("CountCalls() = %d, want 2", env.store.CountCalls())
		}
	})
}

func TestList_StoreFailure(t *testing.T) {
	env := newTestEnv(t, 1)
	env.store.FailWith(errors.New("connection reset"))

	rec := env.get(t, "/api/v1/chapters")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if msg := decodeError(t, rec); strings.Contains(msg, "connection reset") {
		t.Errorf("error %q leaks internal detail", msg)
	}
	if env.mr.Exists(cache.ChaptersKey) {
		t.Error("failed query must not populate the cache")
	}
}

func TestList_CoalescesConcurrentQueries(t *testing.T) {
	env := newTestEnv(t, 2, withoutCache())
	env.store.SetDelay(200 * time.Millisecond)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := env.get(t, "/api/v1/chapters")
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		}()
	}
	wg.Wait()

	if calls := env.store.CountCalls(); calls >= n {
		t.Errorf("CountCalls() = %d, want fewer than %d", calls, n)
	}
}

func TestList_DistinctFiltersAreNotCoalesced(t *testing.T) {
	env := newTestEnv(t, 3, withoutCache())
	env.store.SetDelay(300 * time.Millisecond)

	decodeTotal := func(rec *httptest.ResponseRecorder) int {
		var resp ListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Errorf("decode list: %v", err)
		}
		return resp.Total
	}

	var wg sync.WaitGroup
	var colonTotal, splitTotal int
	wg.Add(2)
	go func() {
		defer wg.Done()
		// A single class value that happens to contain separator characters.
		colonTotal = decodeTotal(env.get(t, "/api/v1/chapters?class=Class+11%3Aunit%3DUnit+1"))
	}()
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		splitTotal = decodeTotal(env.get(t, "/api/v1/chapters?class=Class+11&unit=Unit+1"))
	}()
	wg.Wait()

	if colonTotal != 0 {
		t.Errorf("class with separators total = %d, want 0", colonTotal)
	}
	if splitTotal != 3 {
		t.Errorf("class+unit total = %d, want 3", splitTotal)
	}
}

func TestList_UploadDuringLoad(t *testing.T) {
	// Seeded rows are committed; the delay only applies to reads and inserts
	// issued afterwards through the mock.
	start := func(env *testEnv, done chan<- ListResponse) {
		go func() {
			var resp ListResponse
			rec := env.get(t, "/api/v1/chapters")
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			done <- resp
		}()
	}
	write := func(t *testing.T, env *testEnv) {
		ch := testutil.Chapter("Physics")
		if err := env.store.InsertOne(context.Background(), &ch); err != nil {
			t.Fatal(err)
		}
		env.server.invalidate(context.Background())
	}

	t.Run("stale load does not populate", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.store.SetDelay(300 * time.Millisecond)

		done := make(chan ListResponse, 1)
		start(env, done)
		time.Sleep(150 * time.Millisecond)
		write(t, env)

		if resp := <-done; resp.Total != 1 {
			t.Fatalf("in-flight total = %d, want 1 (counted before the write)", resp.Total)
		}
		if env.mr.Exists(cache.ChaptersKey) {
			t.Error("a load that overlapped a write must not populate the cache")
		}
	})

	t.Run("later requests start a fresh load", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.store.SetDelay(300 * time.Millisecond)

		first := make(chan ListResponse, 1)
		start(env, first)
		time.Sleep(150 * time.Millisecond)
		write(t, env)

		second := make(chan ListResponse, 1)
		start(env, second)

		<-first
		if resp := <-second; resp.Total != 2 {
			t.Errorf("post-write total = %d, want 2", resp.Total)
		}
		if calls := env.store.CountCalls(); calls != 2 {
			t.Errorf("CountCalls() = %d, want 2", calls)
		}
	})
}

func TestGetChapter(t *testing.T) {
	env := newTestEnv(t, 0)

	ch := testutil.Chapter("Physics")
	if err := env.store.InsertOne(context.Background(), &ch); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"found", ch.ID.String(), http.StatusOK},
		{"unknown", uuid.NewString(), http.StatusNotFound},
		{"malformed", "64f1c2a9e4b0", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get(t, "/api/v1/chapters/"+tt.id)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				if decodeError(t, rec) == "" {
					t.Error("missing error message")
				}
				return
			}

			var got chapters.Chapter
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode chapter: %v", err)
			}
			if got.ID != ch.ID || got.Subject != "Physics" {
				t.Errorf("chapter = %+v, want Physics %s", got, ch.ID)
			}
			if !strings.Contains(rec.Body.String(), `"_id":"`+ch.ID.String()+`"`) {
				t.Error("id should be serialized as _id")
			}
		})
	}
}

func TestUpload_InsertsAndInvalidates(t *testing.T) {
	env := newTestEnv(t, 1)

	// Warm the cache.
	env.get(t, "/api/v1/chapters")
	if !env.mr.Exists(cache.ChaptersKey) {
		t.Fatal("cache should be populated")
	}

	bad := map[string]any{"subject": "Maths", "status": "Done"}
	content := testutil.RecordsJSON(t, testutil.Chapter("Physics"), bad, testutil.Chapter("Biology"))

	rec := env.upload(t, testToken, content)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if resp.Inserted != 2 || resp.FailedCount != 1 {
		t.Errorf("inserted=%d failedCount=%d, want 2, 1", resp.Inserted, resp.FailedCount)
	}
	if len(resp.Failed) != 1 || !bytes.Contains(resp.Failed[0], []byte(`"Done"`)) {
		t.Errorf("failed = %s, want the rejected input record", resp.Failed)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Index != 1 {
		t.Errorf("errors = %+v, want one at index 1", resp.Errors)
	}
	if resp.Message == "" {
		t.Error("missing message")
	}

	if env.mr.Exists(cache.ChaptersKey) {
		t.Error("upload should invalidate the cached listing")
	}

	list := env.get(t, "/api/v1/chapters")
	var lr ListResponse
	_ = json.Unmarshal(list.Body.Bytes(), &lr)
	if lr.Total != 3 {
		t.Errorf("total after upload = %d, want 3", lr.Total)
	}
}

func TestUpload_InvalidatesEvenWhenNothingInserted(t *testing.T) {
	env := newTestEnv(t, 0)
	if err := env.mr.Set(cache.ChaptersKey, `{"total":0,"chapters":[]}`); err != nil {
		t.Fatal(err)
	}

	rec := env.upload(t, testToken, []byte(`[{"subject":"x"}]`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if env.mr.Exists(cache.ChaptersKey) {
		t.Error("cache key should be deleted regardless of outcome")
	}
}

func TestUpload_CacheDownStillSucceeds(t *testing.T) {
	env := newTestEnv(t, 0)
	env.mr.SetError("ERR injected failure")

	rec := env.upload(t, testToken, testutil.RecordsJSON(t, testutil.Chapter("Physics")))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
}

func TestUpload_Rejections(t *testing.T) {
	valid := testutil.RecordsJSON(t, testutil.Chapter("Physics"))

	t.Run("missing token", func(t *testing.T) {
		env := newTestEnv(t, 0)
		if rec := env.upload(t, "", valid); rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		env := newTestEnv(t, 0)
		if rec := env.upload(t, "guess", valid); rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("too large", func(t *testing.T) {
		env := newTestEnv(t, 0, withMaxUpload(256))
		big := bytes.Repeat(valid, 20)
		if rec := env.upload(t, testToken, big); rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})

	for name, doc := range map[string]string{
		"not an array": `{"subject":"x"}`,
		"null":         `null`,
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, 0)
			if rec := env.upload(t, testToken, []byte(doc)); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	t.Run("missing file field", func(t *testing.T) {
		env := newTestEnv(t, 0)
		body, contentType := testutil.MultipartFile(t, "document", valid)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chapters", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+testToken)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		env := newTestEnv(t, 0)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chapters", bytes.NewReader(valid))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+testToken)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestUpload_RejectedTokenIsLogged(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := DefaultConfig()
	cfg.AdminToken = testToken
	srv := NewServer(Deps{Store: testutil.NewDB(t)}, cfg, zerolog.New(buf))
	env := &testEnv{handler: srv.Routes(), server: srv}

	valid := testutil.RecordsJSON(t, testutil.Chapter("Physics"))
	if rec := env.upload(t, "guess", valid); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	out := buf.String()
	if !strings.Contains(out, "Rejected admin request") {
		t.Errorf("expected a rejection log line, got %q", out)
	}
	if !strings.Contains(out, `"request_id"`) {
		t.Errorf("rejection log should carry the request id, got %q", out)
	}
	if strings.Contains(out, "guess") {
		t.Error("log must not contain the presented token")
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, 0, withLimit(3))

	for i := 0; i < 3; i++ {
		if rec := env.get(t, "/api/v1/chapters"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := env.get(t, "/api/v1/chapters")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("RateLimit-Limit") != "3" || rec.Header().Get("Retry-After") == "" {
		t.Errorf("missing rate limit headers: %v", rec.Header())
	}
	if decodeError(t, rec) == "" {
		t.Error("missing error message")
	}

	if rec := env.get(t, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200 (not rate limited)", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 0, withLimit(30))

	rec := env.get(t, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["cache"] != "ready" || body["rateLimit"] != "memory" {
		t.Errorf("body = %v, want cache ready, rateLimit memory", body)
	}

	env.mr.SetError("ERR injected failure")
	rec = env.get(t, "/healthz")
	body = map[string]string{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || body["cache"] != "degraded" {
		t.Errorf("status = %d cache = %q, want 200 degraded", rec.Code, body["cache"])
	}
	env.mr.SetError("")

	env.store.FailWith(errors.New("database is locked"))
	rec = env.get(t, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 0)
	env.get(t, "/api/v1/chapters")

	rec := env.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "chapters_http_requests_total") {
		t.Error("metrics should include chapters_http_requests_total")
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := newTestEnv(t, 0)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
