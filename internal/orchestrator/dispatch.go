package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sony/gobreaker"

	"inferd/internal/adapter"
	"inferd/pkg/types"
)

// Response is a successfully dispatched completion.
type Response struct {
	Text       string
	ProviderID string
	Cached     bool
	Confidence float64
}

// ProcessRequest dispatches one completion through the fallback chain:
// primary first, then the ordered fallbacks, at most MaxRetries attempts
// total. Backend faults and below-threshold confidence both advance the
// chain; only exhaustion of the whole chain surfaces to the caller.
func (o *Orchestrator) ProcessRequest(ctx context.Context, prompt string, opts types.CompletionOptions) (Response, error) {
	if o.policy.RequireConsensus {
		return o.processConsensus(ctx, prompt, opts)
	}

	var attempts []Attempt
	for _, providerID := range o.chain() {
		if len(attempts) >= o.policy.MaxRetries {
			break
		}
		reg := o.registration(providerID)
		if reg == nil {
			// Unregistered between chain() and now; skip without
			// burning an attempt.
			continue
		}
		res, cached, err := o.try(ctx, reg, prompt, opts)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			attempts = append(attempts, Attempt{ProviderID: providerID, Reason: err.Error()})
			o.pub.Publish(Event{Name: EventAttemptFailed, ProviderID: providerID, Fields: map[string]any{"reason": err.Error()}})
			o.log.Debug().Str("provider", providerID).Err(err).Msg("attempt failed, advancing fallback chain")
			continue
		}
		conf := confidenceOf(res)
		if conf < o.policy.MinimumConfidence {
			// The backend answered but not convincingly; treat as a
			// failure and retry on the next provider.
			reason := fmt.Sprintf("confidence %.2f below minimum %.2f", conf, o.policy.MinimumConfidence)
			attempts = append(attempts, Attempt{ProviderID: providerID, Reason: reason})
			o.pub.Publish(Event{Name: EventAttemptFailed, ProviderID: providerID, Fields: map[string]any{"reason": reason}})
			continue
		}
		return Response{Text: res.Text, ProviderID: providerID, Cached: cached, Confidence: conf}, nil
	}

	o.pub.Publish(Event{Name: EventDispatchExhausted, Fields: map[string]any{"attempts": len(attempts)}})
	return Response{}, ErrExhausted(attempts)
}

// try runs one attempt against a provider's optimizer under the policy's
// per-request timeout and the provider's circuit breaker. An open breaker
// short-circuits immediately so the chain can advance without waiting out
// a dead backend.
func (o *Orchestrator) try(ctx context.Context, reg *registration, prompt string, opts types.CompletionOptions) (adapter.Result, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.policy.PerRequestTimeout)
	defer cancel()

	type outcome struct {
		res    adapter.Result
		cached bool
	}
	v, err := reg.breaker.Execute(func() (any, error) {
		res, cached, err := reg.opt.Process(attemptCtx, prompt, opts)
		if err != nil {
			return nil, err
		}
		return outcome{res: res, cached: cached}, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return adapter.Result{}, false, adapter.ErrBackendUnavailable("circuit open for " + reg.providerID)
		}
		return adapter.Result{}, false, err
	}
	out := v.(outcome)
	return out.res, out.cached, nil
}

// processConsensus queries multiple providers in parallel and accepts a
// result only when a majority agree on its normalized label. When no
// majority forms, the dispatch is exhausted and the best single candidate
// travels with the error, marked low-confidence.
func (o *Orchestrator) processConsensus(ctx context.Context, prompt string, opts types.CompletionOptions) (Response, error) {
	chain := o.chain()
	if len(chain) > o.policy.MaxRetries {
		chain = chain[:o.policy.MaxRetries]
	}
	if len(chain) < 2 {
		var attempts []Attempt
		for _, id := range chain {
			attempts = append(attempts, Attempt{ProviderID: id, Reason: "consensus requires more than one provider"})
		}
		return Response{}, ErrExhausted(attempts)
	}

	type vote struct {
		providerID string
		res        adapter.Result
		cached     bool
		err        error
	}
	votes := make([]vote, len(chain))
	var wg sync.WaitGroup
	for i, providerID := range chain {
		reg := o.registration(providerID)
		if reg == nil {
			votes[i] = vote{providerID: providerID, err: ErrUnknownProvider(providerID)}
			continue
		}
		wg.Add(1)
		go func(i int, providerID string, reg *registration) {
			defer wg.Done()
			res, cached, err := o.try(ctx, reg, prompt, opts)
			votes[i] = vote{providerID: providerID, res: res, cached: cached, err: err}
		}(i, providerID, reg)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}

	var attempts []Attempt
	tally := make(map[string][]vote)
	var best *vote
	for _, v := range votes {
		if v.err != nil {
			attempts = append(attempts, Attempt{ProviderID: v.providerID, Reason: v.err.Error()})
			continue
		}
		label := consensusLabel(v.res.Text)
		tally[label] = append(tally[label], v)
		if best == nil || confidenceOf(v.res) > confidenceOf(best.res) {
			vv := v
			best = &vv
		}
	}

	majority := len(chain)/2 + 1
	for label, group := range tally {
		if len(group) < majority {
			continue
		}
		// Majority reached; return the group's most confident member.
		win := group[0]
		for _, v := range group[1:] {
			if confidenceOf(v.res) > confidenceOf(win.res) {
				win = v
			}
		}
		o.log.Debug().Str("label", label).Int("votes", len(group)).Msg("consensus reached")
		return Response{Text: win.res.Text, ProviderID: win.providerID, Cached: win.cached, Confidence: confidenceOf(win.res)}, nil
	}

	for _, group := range tally {
		for _, v := range group {
			attempts = append(attempts, Attempt{ProviderID: v.providerID, Reason: "no majority agreement"})
		}
	}
	o.pub.Publish(Event{Name: EventDispatchExhausted, Fields: map[string]any{"attempts": len(attempts), "consensus": true}})
	if best != nil {
		return Response{}, ErrExhaustedWithCandidate(attempts, &Candidate{
			ProviderID: best.providerID,
			Text:       best.res.Text,
			Confidence: confidenceOf(best.res),
		})
	}
	return Response{}, ErrExhausted(attempts)
}

// consensusLabel normalizes a completion to a comparable label: the
// lowercased, whitespace-trimmed first line.
func consensusLabel(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.ToLower(strings.TrimSpace(text))
}

// confidenceOf treats an unscored result as fully confident.
func confidenceOf(res adapter.Result) float64 {
	if res.Confidence < 0 {
		return 1.0
	}
	return res.Confidence
}
