package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/seekwell/llmgw"
	"github.com/seekwell/llmgw/jsonrepair"
	"github.com/seekwell/llmgw/provider"
	"github.com/seekwell/llmgw/route"
)

// attempt runs one request/retry lifecycle against one route and always
// returns a populated AttemptResult; failures are recorded, not raised. The
// provider slot is held for the whole retry loop, so backoff sleeps count
// against it — this caps fan-out during provider outages rather than
// amplifying it.
func (g *Gateway) attempt(ctx context.Context, r route.Route, request *llmgw.ChatRequest, params ChatParams, callId string) *llmgw.AttemptResult {
	start := g.clock.Now()
	result := &llmgw.AttemptResult{Route: r.Spec}

	finish := func() *llmgw.AttemptResult {
		result.Duration = g.clock.Since(start)
		outcome := "success"
		if !result.Ok {
			result.ErrorType = llmgw.Classify(result.Err)
			outcome = result.ErrorType
		}
		g.metrics.RecordAttempt(r.Spec.Provider, r.Spec.Model, outcome, result.Duration)
		g.metrics.RecordTokens(r.Spec.Provider, r.Spec.Model, result.TokensIn, result.TokensOut)
		g.logAttempt(result, callId)
		return result
	}

	if err := g.breaker.Check(r.Spec); err != nil {
		result.Err = err
		return finish()
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = g.attemptTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	release, err := g.limiter.Acquire(attemptCtx, r.Spec.Provider)
	if err != nil {
		result.Err = err
		return finish()
	}
	defer release()

	var response *provider.Response
	if params.Stream {
		// Best-effort single shot; a broken stream cannot be replayed
		// through the caller's callback, so there is no retry loop.
		response, err = r.Endpoint.CompleteStream(attemptCtx, r.Spec.Model, request, params.OnDelta)
		if err != nil {
			if llmgw.Retryable(err) {
				g.breaker.RecordFailure(r.Spec)
			} else if isProviderError(err) {
				g.breaker.RecordSuccess(r.Spec)
			}
		} else {
			g.breaker.RecordSuccess(r.Spec)
		}
	} else {
		response, err = g.completeWithRetry(attemptCtx, r, request)
	}

	if err != nil {
		result.Err = err
		result.HttpStatus = httpStatusOf(err)
		return finish()
	}

	result.Ok = true
	result.HttpStatus = http.StatusOK
	result.Text = response.Text
	result.TokensIn = response.TokensIn
	result.TokensOut = response.TokensOut

	if params.ExpectJson {
		result.ParsedJson, result.ValidJson = jsonrepair.Parse(result.Text)
	}
	return finish()
}

// completeWithRetry issues the request up to g.attempts times with
// exponential backoff and jitter. Retryable failures count against the
// route's breaker; terminal provider failures clear it, since a definite
// 4xx proves the route is reachable.
func (g *Gateway) completeWithRetry(ctx context.Context, r route.Route, request *llmgw.ChatRequest) (*provider.Response, error) {
	var response *provider.Response

	operation := func() error {
		var err error
		response, err = r.Endpoint.Complete(ctx, r.Spec.Model, request)
		if err == nil {
			g.breaker.RecordSuccess(r.Spec)
			return nil
		}
		if llmgw.Retryable(err) {
			g.breaker.RecordFailure(r.Spec)
			return err
		}
		if isProviderError(err) {
			g.breaker.RecordSuccess(r.Spec)
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.attempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return response, nil
}

func (g *Gateway) logAttempt(result *llmgw.AttemptResult, callId string) {
	if result.Ok {
		g.logger.Infow("Attempt succeeded",
			"call_id", callId,
			"route", result.Route.Key(),
			"duration", result.Duration,
			"tokens_in", result.TokensIn,
			"tokens_out", result.TokensOut)
		return
	}
	g.logger.Warnw("Attempt failed",
		"call_id", callId,
		"route", result.Route.Key(),
		"duration", result.Duration,
		"error_type", result.ErrorType,
		"http_status", result.HttpStatus,
		"error", result.Err)
}

func isProviderError(err error) bool {
	var providerErr llmgw.ProviderError
	return errors.As(err, &providerErr)
}

func httpStatusOf(err error) int {
	var providerErr llmgw.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.StatusCode
	}
	return 0
}
