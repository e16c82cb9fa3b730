// Package llmgw is the outbound dispatch layer that routes chat-completion
// requests to one of several interchangeable backend providers. Depending on
// the task it tries one route, falls back through several in order, or races
// several concurrently to bound tail latency.
package llmgw

import (
	"time"
)

// RouteSpec identifies one callable chat-completion backend as a
// (provider, model) pair. Values are immutable; create freely, never mutate.
type RouteSpec struct {
	Provider string
	Model    string
}

// Key returns the canonical string form, e.g. "openai:gpt-4o-mini".
// Route lists are de-duplicated by this key before dispatch, and circuit
// breaker state is keyed by it.
func (r RouteSpec) Key() string {
	return r.Provider + ":" + r.Model
}

// Message is one entry of an ordered chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries the request-shaped part of a call: everything an
// endpoint needs besides the model name, which comes from the route.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int

	// Extra is an opaque passthrough map merged into the provider's JSON
	// request body. Keys here win over the standard fields.
	Extra map[string]any
}

// Policy is the dispatch strategy for one call. Decided once per call,
// never persisted.
type Policy string

const (
	// PolicySingle executes one attempt on the primary route.
	PolicySingle Policy = "single"

	// PolicyFallback tries routes strictly in resolution order, stopping at
	// the first usable result.
	PolicyFallback Policy = "fallback"

	// PolicyHedge starts the primary attempt, then races a secondary attempt
	// after a hedge delay to bound tail latency.
	PolicyHedge Policy = "hedge"
)

// AttemptResult is the outcome record of one attempt against one route.
// It is exclusively owned by the attempt that produced it and read-only
// once returned.
type AttemptResult struct {
	Route      RouteSpec
	Duration   time.Duration
	Ok         bool
	HttpStatus int

	// ErrorType is the classification of Err, one of the ErrorType*
	// constants, or empty on success.
	ErrorType string
	Err       error

	Text      string
	TokensIn  int
	TokensOut int

	// ParsedJson and ValidJson are populated only when the caller requested
	// JSON. An unparseable body leaves ParsedJson nil with Ok still true;
	// JSON recovery is best effort and never an error by itself.
	ParsedJson any
	ValidJson  bool
}

// Usable reports whether the attempt both succeeded and satisfies the
// caller's format requirement.
func (r *AttemptResult) Usable(expectJson bool) bool {
	return r != nil && r.Ok && (!expectJson || r.ValidJson)
}
