package cache

import (
	"encoding/json"
	"fmt"

	xxhash "github.com/cespare/xxhash/v2"
)

// Layer identifies which surface of the app a result belongs to.
type Layer string

const (
	LayerHome    Layer = "home"
	LayerStory   Layer = "story"
	LayerAnalyst Layer = "analyst"
)

// Tier selects between the cheaper and the higher-quality model variant.
type Tier string

const (
	TierDefault Tier = "default"
	TierPremium Tier = "premium"
)

// Key uniquely identifies one cacheable enrichment result. Opaque to callers;
// never mutated after construction.
type Key string

func (k Key) String() string { return string(k) }

// Parts are the fingerprint inputs. Payload must be a JSON-serializable
// aggregate, never raw line-item transactions.
type Parts struct {
	Scope   string // reporting period, e.g. "2024-01"
	Layer   Layer
	Topic   string
	Payload interface{}
	Tier    Tier
}

// keyPrefix namespaces every cache key in the durable store.
const keyPrefix = "enrich:"

// Fingerprint deterministically serializes the parts into a cache key. The
// payload collapses into a fixed-width xxhash64 digest; encoding/json sorts
// map keys, so equal payloads always hash equally. Collisions only cost a
// wrong cache hit probability, not security, so a non-cryptographic hash is
// enough.
func Fingerprint(p Parts) Key {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		// Unserializable payloads degrade to their Go representation; the key
		// stays deterministic for identical inputs.
		payload = []byte(fmt.Sprintf("%v", p.Payload))
	}

	digest := xxhash.Sum64(payload)

	return Key(fmt.Sprintf("%s%s:%s:%s:%016x:%s", keyPrefix, p.Scope, p.Layer, p.Topic, digest, p.Tier))
}

// PeriodPrefix returns the key prefix shared by every entry of one reporting
// period, for scope-wide invalidation.
func PeriodPrefix(scope string) string {
	return keyPrefix + scope + ":"
}
