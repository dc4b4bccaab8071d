package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
)

type memoryReplayStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryReplayStore() *memoryReplayStore {
	return &memoryReplayStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryReplayStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryReplayStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryReplayStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryReplayStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryReplayStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func postWithKey(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyRequiresKeyOnPost(t *testing.T) {
	called := false
	h := Idempotency(newMemoryReplayStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postWithKey("/api/v1/checkout", "", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/chk_1", nil))
	assert.True(t, called, "reads pass through without a key")
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	h := Idempotency(store, 48*time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"checkoutId":"chk_1"}}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, postWithKey("/api/v1/checkout", "k1", `{"a":1}`))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, postWithKey("/api/v1/checkout", "k1", `{"a":1}`))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
	for _, ttl := range store.ttls {
		assert.Equal(t, 48*time.Hour, ttl)
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	h := Idempotency(newMemoryReplayStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/payments/intents", "k2", `{"currency":"usd"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postWithKey("/api/v1/payments/intents", "k2", `{"currency":"eur"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newMemoryReplayStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/checkout/chk_1/confirm", "k3", `{}`))
	}()
	<-entered

	dup := httptest.NewRecorder()
	h.ServeHTTP(dup, postWithKey("/api/v1/checkout/chk_1/confirm", "k3", `{}`))
	close(release)
	<-done

	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, dup))
}

func TestIdempotencyReleasesKeyAfterServerError(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/checkout", "k4", `{}`))
	}
	assert.Equal(t, 2, calls)
	require.Len(t, store.data, 1)
	for _, raw := range store.data {
		assert.Contains(t, raw, `"state":"completed"`)
	}
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	calls := 0
	h := Idempotency(newMemoryReplayStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, user := range []string{"user-a", "user-b"} {
		req := postWithKey("/api/v1/checkout", "shared", `{}`)
		req = req.WithContext(WithUserID(req.Context(), user))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}
