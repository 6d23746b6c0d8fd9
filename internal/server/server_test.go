package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-enricher/internal/cache"
	"finance-enricher/internal/enrich"
	"finance-enricher/internal/label"
	"finance-enricher/internal/sequencer"
)

// scriptedGenerator returns a canned response per task.
type scriptedGenerator struct {
	calls     int32
	responses map[string]string
	err       error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt enrich.Prompt) (json.RawMessage, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.err != nil {
		return nil, g.err
	}
	return json.RawMessage(g.responses[prompt.Task]), nil
}

func newTestServer(t *testing.T, gen enrich.Generator) *Server {
	t.Helper()
	c := cache.New(cache.Config{TTL: time.Hour}, nil, nil)
	seq := sequencer.New(sequencer.Config{
		MinSpacing: 0,
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	}, nil)
	e := enrich.New(gen, c, seq, nil)
	t.Cleanup(e.Close)
	return New(e, label.DefaultConfig(), nil, nil)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleSuggestTags(t *testing.T) {
	gen := &scriptedGenerator{responses: map[string]string{
		"suggest_tags": `[{"tag":"coffee","confidence":0.9}]`,
	}}
	s := newTestServer(t, gen)

	rec := doRequest(t, s, "POST", "/api/enrich/tags",
		`{"period":"2024-01","payload":{"total":120}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tags":[{"tag":"coffee","confidence":0.9}]}`, rec.Body.String())
}

func TestHandleSuggestTags_Validation(t *testing.T) {
	s := newTestServer(t, &scriptedGenerator{})

	t.Run("missing period", func(t *testing.T) {
		rec := doRequest(t, s, "POST", "/api/enrich/tags", `{"payload":{}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := doRequest(t, s, "POST", "/api/enrich/tags", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleMonthlyStory(t *testing.T) {
	gen := &scriptedGenerator{responses: map[string]string{
		"monthly_story": `{"title":"January","narrative":"Steady month."}`,
	}}
	s := newTestServer(t, gen)

	rec := doRequest(t, s, "POST", "/api/enrich/story",
		`{"period":"2024-01","tier":"premium","payload":{"total":1}}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var story enrich.Story
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &story))
	assert.Equal(t, "January", story.Title)
}

func TestHandleDeepDive(t *testing.T) {
	gen := &scriptedGenerator{responses: map[string]string{
		"deep_dive": `{"topic":"subscriptions","summary":"s","findings":[{"label":"Netflix","detail":"monthly"}]}`,
	}}
	s := newTestServer(t, gen)

	t.Run("ok", func(t *testing.T) {
		rec := doRequest(t, s, "POST", "/api/enrich/deepdive",
			`{"period":"2024-01","topic":"subscriptions","payload":{"total":1}}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var dive enrich.DeepDive
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dive))
		assert.Len(t, dive.Findings, 1)
	})

	t.Run("topic required", func(t *testing.T) {
		rec := doRequest(t, s, "POST", "/api/enrich/deepdive",
			`{"period":"2024-01","payload":{"total":1}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleEnrich_RateLimitMapsTo429(t *testing.T) {
	gen := &scriptedGenerator{err: stderrors.New("quota exceeded, retry later")}
	s := newTestServer(t, gen)

	rec := doRequest(t, s, "POST", "/api/enrich/tags",
		`{"period":"2024-01","payload":{"total":1}}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleEnrich_ExecutionFailureMapsTo500(t *testing.T) {
	gen := &scriptedGenerator{err: stderrors.New("model exploded")}
	s := newTestServer(t, gen)

	rec := doRequest(t, s, "POST", "/api/enrich/tags",
		`{"period":"2024-01","payload":{"total":1}}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleDeriveLabel(t *testing.T) {
	s := newTestServer(t, &scriptedGenerator{})

	rec := doRequest(t, s, "POST", "/api/labels/derive",
		`{"description":"STARBUCKS DXB MALL 12.50 AED"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"label":"Starbucks Dxb","description":"STARBUCKS DXB MALL"}`, rec.Body.String())
}

func TestHandleInvalidate(t *testing.T) {
	gen := &scriptedGenerator{responses: map[string]string{
		"suggest_tags": `[{"tag":"coffee","confidence":0.9}]`,
	}}
	s := newTestServer(t, gen)

	body := `{"period":"2024-01","payload":{"total":1}}`
	rec := doRequest(t, s, "POST", "/api/enrich/tags", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(1), atomic.LoadInt32(&gen.calls))

	rec = doRequest(t, s, "DELETE", "/api/cache/2024-01", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Repeat request regenerates instead of hitting the cache.
	rec = doRequest(t, s, "POST", "/api/enrich/tags", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gen.calls))
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &scriptedGenerator{})

	rec := doRequest(t, s, "GET", "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleHealth_DegradedStore(t *testing.T) {
	c := cache.New(cache.Config{TTL: time.Hour}, nil, nil)
	seq := sequencer.New(sequencer.DefaultConfig(), nil)
	e := enrich.New(&scriptedGenerator{}, c, seq, nil)
	t.Cleanup(e.Close)

	s := New(e, label.DefaultConfig(), failingStore{}, nil)

	rec := doRequest(t, s, "GET", "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status["status"])
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (string, error) {
	return "", stderrors.New("store down")
}
func (failingStore) Set(ctx context.Context, key, value string) error { return stderrors.New("store down") }
func (failingStore) Delete(ctx context.Context, keys ...string) error { return stderrors.New("store down") }
func (failingStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return nil, stderrors.New("store down")
}
func (failingStore) Close() error  { return nil }
func (failingStore) Health() error { return stderrors.New("store down") }
