// Package cache provides content-addressed storage of prior response text.
// Keys are a pure function of (primary route, request), so identical
// requests against the same route always resolve to the same entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/seekwell/llmgw"
)

// Store is the injected cache collaborator. Implementations must be safe
// for concurrent use. Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type cacheKeyMaterial struct {
	Route       string          `json:"route"`
	Messages    []llmgw.Message `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Extra       map[string]any  `json:"extra,omitempty"`
}

// Key hashes the primary route and the request into a cache key. Maps are
// marshaled with sorted keys, so the result is deterministic.
func Key(primary llmgw.RouteSpec, request *llmgw.ChatRequest) (string, error) {
	material := cacheKeyMaterial{
		Route:       primary.Key(),
		Messages:    request.Messages,
		Temperature: request.Temperature,
		MaxTokens:   request.MaxTokens,
		Extra:       request.Extra,
	}
	materialBytes, err := json.Marshal(material)
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}
	hash := sha256.Sum256(materialBytes)
	return "llmgw:cache:" + hex.EncodeToString(hash[:]), nil
}
