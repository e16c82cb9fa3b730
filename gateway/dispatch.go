package gateway

import (
	"context"

	"github.com/seekwell/llmgw"
	"github.com/seekwell/llmgw/route"
)

// runFallback tries routes strictly in resolution order and returns the
// first usable result. If every route fails the last failure propagates; a
// successful-but-unusable result is returned only when nothing better was
// ever produced.
func (g *Gateway) runFallback(ctx context.Context, routes []route.Route, request *llmgw.ChatRequest, params ChatParams, callId string) (*llmgw.AttemptResult, error) {
	var bestUnusable *llmgw.AttemptResult
	var last *llmgw.AttemptResult

	for _, r := range routes {
		result := g.attempt(ctx, r, request, params, callId)
		if result.Usable(params.ExpectJson) {
			return result, nil
		}
		if result.Ok && bestUnusable == nil {
			bestUnusable = result
		}
		last = result
	}

	if bestUnusable != nil {
		return bestUnusable, nil
	}
	return nil, last.Err
}

// runHedge starts the primary attempt, waits up to the hedge delay, then
// races a secondary attempt against it. Any remaining routes are tried
// sequentially only after both racers miss. A losing attempt is abandoned,
// not cancelled: its result lands in the buffered channel and is discarded,
// while the underlying request runs to completion on its own timeout.
func (g *Gateway) runHedge(ctx context.Context, routes []route.Route, request *llmgw.ChatRequest, params ChatParams, callId string) (*llmgw.AttemptResult, error) {
	results := make(chan *llmgw.AttemptResult, len(routes))
	launch := func(r route.Route) {
		go func() {
			results <- g.attempt(ctx, r, request, params, callId)
		}()
	}

	var bestUnusable *llmgw.AttemptResult
	var last *llmgw.AttemptResult
	consider := func(result *llmgw.AttemptResult) bool {
		if result.Usable(params.ExpectJson) {
			return true
		}
		if result.Ok && bestUnusable == nil {
			bestUnusable = result
		}
		last = result
		return false
	}

	launch(routes[0])
	inFlight := 1

	timer := g.clock.Timer(g.hedgeDelayFor(params.Task))
	defer timer.Stop()

	// The secondary starts only when the delay elapses or the primary
	// finishes unusable, never earlier.
	select {
	case result := <-results:
		inFlight--
		if consider(result) {
			return result, nil
		}
	case <-timer.C:
	}

	g.logger.Infow("Starting hedge attempt",
		"call_id", callId,
		"route", routes[1].Spec.Key())
	launch(routes[1])
	inFlight++

	for inFlight > 0 {
		result := <-results
		inFlight--
		if consider(result) {
			return result, nil
		}
	}

	// Both racers missed; try any remaining configured routes in order.
	for _, r := range routes[2:] {
		result := g.attempt(ctx, r, request, params, callId)
		if consider(result) {
			return result, nil
		}
	}

	if bestUnusable != nil {
		return bestUnusable, nil
	}
	return nil, last.Err
}
