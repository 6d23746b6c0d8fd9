package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"finance-enricher/internal/cache"
	"finance-enricher/internal/common/errors"
)

// taskForLayer names the generation task for each app surface.
func taskForLayer(layer cache.Layer) string {
	switch layer {
	case cache.LayerHome:
		return "suggest_tags"
	case cache.LayerStory:
		return "monthly_story"
	case cache.LayerAnalyst:
		return "deep_dive"
	default:
		return string(layer)
	}
}

// TagSuggestion is one proposed tag for a group of transactions.
type TagSuggestion struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// Story is the monthly narrative shown on the story surface.
type Story struct {
	Title      string   `json:"title"`
	Narrative  string   `json:"narrative"`
	Highlights []string `json:"highlights,omitempty"`
}

// DeepDive is a structured insight result consumed by the analytics surface.
type DeepDive struct {
	Topic    string            `json:"topic"`
	Summary  string            `json:"summary"`
	Findings []DeepDiveFinding `json:"findings"`
}

// DeepDiveFinding is one observation inside a deep dive.
type DeepDiveFinding struct {
	Label  string  `json:"label"`
	Detail string  `json:"detail"`
	Amount float64 `json:"amount,omitempty"`
}

// SuggestTags asks the collaborator for tag suggestions over a spending
// aggregate. A result that does not decode into suggestions is rejected as
// malformed; no partial results are synthesized.
func (e *Enricher) SuggestTags(ctx context.Context, scope string, tier cache.Tier, payload interface{}) ([]TagSuggestion, error) {
	data, err := e.enrich(ctx, Request{
		Scope:   scope,
		Layer:   cache.LayerHome,
		Topic:   "tags",
		Payload: payload,
		Tier:    tier,
	}, func(raw json.RawMessage) error {
		var tags []TagSuggestion
		return decodeStrict(raw, &tags, "tag suggestions")
	})
	if err != nil {
		return nil, err
	}

	var tags []TagSuggestion
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, errors.MalformedResponse(fmt.Sprintf("cached tag suggestions unreadable: %v", err))
	}
	return tags, nil
}

// MonthlyStory asks the collaborator for the month's narrative.
func (e *Enricher) MonthlyStory(ctx context.Context, scope string, tier cache.Tier, payload interface{}) (*Story, error) {
	data, err := e.enrich(ctx, Request{
		Scope:   scope,
		Layer:   cache.LayerStory,
		Topic:   "narrative",
		Payload: payload,
		Tier:    tier,
	}, func(raw json.RawMessage) error {
		var story Story
		if err := decodeStrict(raw, &story, "monthly story"); err != nil {
			return err
		}
		if story.Narrative == "" {
			return errors.MalformedResponse("monthly story has an empty narrative")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var story Story
	if err := json.Unmarshal(data, &story); err != nil {
		return nil, errors.MalformedResponse(fmt.Sprintf("cached monthly story unreadable: %v", err))
	}
	return &story, nil
}

// DeepDive asks the collaborator for a structured insight on one topic.
func (e *Enricher) DeepDive(ctx context.Context, scope, topic string, tier cache.Tier, payload interface{}) (*DeepDive, error) {
	data, err := e.enrich(ctx, Request{
		Scope:   scope,
		Layer:   cache.LayerAnalyst,
		Topic:   topic,
		Payload: payload,
		Tier:    tier,
	}, func(raw json.RawMessage) error {
		var dive DeepDive
		if err := decodeStrict(raw, &dive, "deep dive"); err != nil {
			return err
		}
		if len(dive.Findings) == 0 {
			return errors.MalformedResponse("deep dive has no findings")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var dive DeepDive
	if err := json.Unmarshal(data, &dive); err != nil {
		return nil, errors.MalformedResponse(fmt.Sprintf("cached deep dive unreadable: %v", err))
	}
	return &dive, nil
}

// decodeStrict decodes raw into dest, mapping any decode failure onto the
// malformed-response shape.
func decodeStrict(raw json.RawMessage, dest interface{}, what string) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.MalformedResponse(fmt.Sprintf("generation result does not parse as %s: %v", what, err))
	}
	return nil
}
