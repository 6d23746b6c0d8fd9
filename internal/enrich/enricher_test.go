package enrich

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-enricher/internal/cache"
	"finance-enricher/internal/common/errors"
	"finance-enricher/internal/sequencer"
)

// stubGenerator scripts responses and counts calls.
type stubGenerator struct {
	mu       sync.Mutex
	calls    int32
	respond  func(prompt Prompt) (json.RawMessage, error)
	prompts  []Prompt
	blockFor time.Duration
}

func (g *stubGenerator) Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error) {
	atomic.AddInt32(&g.calls, 1)
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.blockFor > 0 {
		time.Sleep(g.blockFor)
	}
	return g.respond(prompt)
}

func (g *stubGenerator) callCount() int {
	return int(atomic.LoadInt32(&g.calls))
}

func newTestEnricher(t *testing.T, gen Generator) *Enricher {
	t.Helper()
	c := cache.New(cache.Config{TTL: time.Hour}, nil, nil)
	seq := sequencer.New(sequencer.Config{
		MinSpacing: 0,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}, nil)
	e := New(gen, c, seq, nil)
	t.Cleanup(e.Close)
	return e
}

func TestEnrich_GeneratesOnceThenServesFromCache(t *testing.T) {
	gen := &stubGenerator{respond: func(Prompt) (json.RawMessage, error) {
		return json.RawMessage(`{"insight":"high spend"}`), nil
	}}
	e := newTestEnricher(t, gen)
	ctx := context.Background()

	req := Request{Scope: "2024-01", Layer: cache.LayerHome, Topic: "tags",
		Payload: map[string]int{"total": 100}, Tier: cache.TierDefault}

	first, err := e.Enrich(ctx, req)
	require.NoError(t, err)
	second, err := e.Enrich(ctx, req)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, 1, gen.callCount())
}

func TestEnrich_DistinctRequestsGenerateSeparately(t *testing.T) {
	gen := &stubGenerator{respond: func(p Prompt) (json.RawMessage, error) {
		return json.RawMessage(`{"period":"` + p.Period + `"}`), nil
	}}
	e := newTestEnricher(t, gen)
	ctx := context.Background()

	base := Request{Scope: "2024-01", Layer: cache.LayerHome, Topic: "tags",
		Payload: map[string]int{"total": 100}, Tier: cache.TierDefault}
	other := base
	other.Scope = "2024-02"

	_, err := e.Enrich(ctx, base)
	require.NoError(t, err)
	_, err = e.Enrich(ctx, other)
	require.NoError(t, err)

	assert.Equal(t, 2, gen.callCount())
}

func TestEnrich_ConcurrentSameKeyShareOneGeneration(t *testing.T) {
	gen := &stubGenerator{
		blockFor: 30 * time.Millisecond,
		respond: func(Prompt) (json.RawMessage, error) {
			return json.RawMessage(`{"shared":true}`), nil
		},
	}
	e := newTestEnricher(t, gen)
	ctx := context.Background()

	req := Request{Scope: "2024-01", Layer: cache.LayerStory, Topic: "narrative",
		Payload: map[string]int{"total": 5}, Tier: cache.TierDefault}

	var wg sync.WaitGroup
	results := make([]json.RawMessage, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Enrich(ctx, req)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.JSONEq(t, `{"shared":true}`, string(results[i]))
	}
	assert.Equal(t, 1, gen.callCount())
}

func TestEnrich_GeneratorErrorNotCached(t *testing.T) {
	var fail int32 = 1
	gen := &stubGenerator{respond: func(Prompt) (json.RawMessage, error) {
		if atomic.LoadInt32(&fail) == 1 {
			return nil, &errors.APIError{StatusCode: 500, Message: "internal"}
		}
		return json.RawMessage(`{"ok":true}`), nil
	}}
	e := newTestEnricher(t, gen)
	ctx := context.Background()

	req := Request{Scope: "2024-01", Layer: cache.LayerHome, Topic: "tags",
		Payload: 1, Tier: cache.TierDefault}

	_, err := e.Enrich(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeExecution))

	// Failure was not cached; the next call reaches the collaborator again.
	atomic.StoreInt32(&fail, 0)
	data, err := e.Enrich(ctx, req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestEnrich_InvalidJSONRejected(t *testing.T) {
	gen := &stubGenerator{respond: func(Prompt) (json.RawMessage, error) {
		return json.RawMessage(`here are your tags: food, travel`), nil
	}}
	e := newTestEnricher(t, gen)

	req := Request{Scope: "2024-01", Layer: cache.LayerHome, Topic: "tags",
		Payload: 1, Tier: cache.TierDefault}

	_, err := e.Enrich(context.Background(), req)
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "malformed_response", appErr.Code)
	assert.Equal(t, 1, gen.callCount())
}

func TestSuggestTags(t *testing.T) {
	gen := &stubGenerator{respond: func(p Prompt) (json.RawMessage, error) {
		assert.Equal(t, "suggest_tags", p.Task)
		return json.RawMessage(`[{"tag":"coffee","confidence":0.92},{"tag":"commute","confidence":0.7}]`), nil
	}}
	e := newTestEnricher(t, gen)

	tags, err := e.SuggestTags(context.Background(), "2024-01", cache.TierDefault, map[string]int{"total": 10})
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "coffee", tags[0].Tag)
	assert.InDelta(t, 0.92, tags[0].Confidence, 1e-9)
}

func TestSuggestTags_WrongShapeNotCached(t *testing.T) {
	var good int32
	gen := &stubGenerator{respond: func(Prompt) (json.RawMessage, error) {
		if atomic.LoadInt32(&good) == 0 {
			return json.RawMessage(`{"tags":"coffee"}`), nil
		}
		return json.RawMessage(`[{"tag":"coffee","confidence":0.9}]`), nil
	}}
	e := newTestEnricher(t, gen)
	ctx := context.Background()

	_, err := e.SuggestTags(ctx, "2024-01", cache.TierDefault, 1)
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "malformed_response", appErr.Code)

	// The malformed result must not have been cached.
	atomic.StoreInt32(&good, 1)
	tags, err := e.SuggestTags(ctx, "2024-01", cache.TierDefault, 1)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
	assert.Equal(t, 2, gen.callCount())
}

func TestMonthlyStory(t *testing.T) {
	gen := &stubGenerator{respond: func(p Prompt) (json.RawMessage, error) {
		assert.Equal(t, "monthly_story", p.Task)
		return json.RawMessage(`{"title":"January","narrative":"You spent less on dining.","highlights":["dining -12%"]}`), nil
	}}
	e := newTestEnricher(t, gen)

	story, err := e.MonthlyStory(context.Background(), "2024-01", cache.TierPremium, map[string]int{"total": 10})
	require.NoError(t, err)
	assert.Equal(t, "January", story.Title)
	assert.NotEmpty(t, story.Narrative)
}

func TestMonthlyStory_EmptyNarrativeRejected(t *testing.T) {
	gen := &stubGenerator{respond: func(Prompt) (json.RawMessage, error) {
		return json.RawMessage(`{"title":"January","narrative":""}`), nil
	}}
	e := newTestEnricher(t, gen)

	_, err := e.MonthlyStory(context.Background(), "2024-01", cache.TierDefault, 1)
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "malformed_response", appErr.Code)
}

func TestDeepDive(t *testing.T) {
	gen := &stubGenerator{respond: func(p Prompt) (json.RawMessage, error) {
		assert.Equal(t, "deep_dive", p.Task)
		assert.Equal(t, "subscriptions", p.Topic)
		return json.RawMessage(`{"topic":"subscriptions","summary":"Three recurring services.","findings":[{"label":"Netflix","detail":"monthly","amount":39.0}]}`), nil
	}}
	e := newTestEnricher(t, gen)

	dive, err := e.DeepDive(context.Background(), "2024-01", "subscriptions", cache.TierDefault, map[string]int{"total": 10})
	require.NoError(t, err)
	require.Len(t, dive.Findings, 1)
	assert.Equal(t, "Netflix", dive.Findings[0].Label)
}

func TestDeepDive_NoFindingsRejected(t *testing.T) {
	gen := &stubGenerator{respond: func(Prompt) (json.RawMessage, error) {
		return json.RawMessage(`{"topic":"subscriptions","summary":"nothing here","findings":[]}`), nil
	}}
	e := newTestEnricher(t, gen)

	_, err := e.DeepDive(context.Background(), "2024-01", "subscriptions", cache.TierDefault, 1)
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "malformed_response", appErr.Code)
}

func TestInvalidatePeriod(t *testing.T) {
	gen := &stubGenerator{respond: func(p Prompt) (json.RawMessage, error) {
		return json.RawMessage(`{"period":"` + p.Period + `"}`), nil
	}}
	e := newTestEnricher(t, gen)
	ctx := context.Background()

	jan := Request{Scope: "2024-01", Layer: cache.LayerHome, Topic: "tags", Payload: 1, Tier: cache.TierDefault}
	feb := Request{Scope: "2024-02", Layer: cache.LayerHome, Topic: "tags", Payload: 1, Tier: cache.TierDefault}

	_, err := e.Enrich(ctx, jan)
	require.NoError(t, err)
	_, err = e.Enrich(ctx, feb)
	require.NoError(t, err)
	require.Equal(t, 2, gen.callCount())

	e.InvalidatePeriod(ctx, "2024-01")

	// January regenerates, February is still cached.
	_, err = e.Enrich(ctx, jan)
	require.NoError(t, err)
	_, err = e.Enrich(ctx, feb)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.callCount())
}

func TestTaskForLayer(t *testing.T) {
	assert.Equal(t, "suggest_tags", taskForLayer(cache.LayerHome))
	assert.Equal(t, "monthly_story", taskForLayer(cache.LayerStory))
	assert.Equal(t, "deep_dive", taskForLayer(cache.LayerAnalyst))
	assert.Equal(t, "custom", taskForLayer(cache.Layer("custom")))
}
