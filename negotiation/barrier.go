package negotiation

import (
	"context"
	"sort"
)

// offerBarrierResult is the outcome of runOfferBarrier, which fans out one
// Offer task per selected agent and waits until
// every task has reported completion (success or failure), per spec.md
// §4.2/§5: "the Center skill is invoked only after every selected agent has
// either returned an offer, failed to produce one, or exceeded an optional
// per-offer timeout. The barrier is a count of completed tasks == selected
// count, not a time budget."
type offerBarrierResult struct {
	// byAgent holds one entry per selected agent, success or failure.
	byAgent map[string]offerOutcome
}

type offerOutcome struct {
	content      string
	capabilities []string
	err          error
}

// runOfferBarrier invokes task once per agent id concurrently and blocks
// until all have reported, or ctx is cancelled (cancellation mid-offer:
// spec.md scenario 6 — in-flight results are discarded by the caller, which
// must check ctx.Err() before trusting the returned result). onResult, if
// non-nil, is invoked once per completed agent from the single collecting
// goroutine (never from the per-agent goroutines themselves), so a caller
// can record the offer and publish offer.received without any additional
// synchronization of its own.
func runOfferBarrier(ctx context.Context, agentIDs []string, task func(ctx context.Context, agentID string) (content string, capabilities []string, err error), onResult func(agentID string, outcome offerOutcome)) offerBarrierResult {
	type reported struct {
		agentID string
		outcome offerOutcome
	}

	results := make(chan reported, len(agentIDs))
	for _, id := range agentIDs {
		go func(agentID string) {
			content, caps, err := task(ctx, agentID)
			results <- reported{agentID: agentID, outcome: offerOutcome{content: content, capabilities: caps, err: err}}
		}(id)
	}

	byAgent := make(map[string]offerOutcome, len(agentIDs))
	for range agentIDs {
		select {
		case r := <-results:
			byAgent[r.agentID] = r.outcome
			if onResult != nil {
				onResult(r.agentID, r.outcome)
			}
		case <-ctx.Done():
			// Cancellation: stop waiting. Any Offer tasks still running will
			// report into results, but nothing reads that channel again, so
			// their results are discarded per spec.md's cancellation
			// semantics.
			return offerBarrierResult{byAgent: byAgent}
		}
	}
	return offerBarrierResult{byAgent: byAgent}
}

// canonicalOrder returns agentIDs sorted for presentation to the Center,
// erasing arrival order per spec.md §4.2.
func canonicalOrder(agentIDs []string) []string {
	out := append([]string(nil), agentIDs...)
	sort.Strings(out)
	return out
}

// allFailed reports whether every entry in r is a failure, which fails the
// enclosing session per spec.md §4.2's partial-failure policy.
func (r offerBarrierResult) allFailed() bool {
	if len(r.byAgent) == 0 {
		return true
	}
	for _, o := range r.byAgent {
		if o.err == nil {
			return false
		}
	}
	return true
}

func (r offerBarrierResult) succeededCount() int {
	n := 0
	for _, o := range r.byAgent {
		if o.err == nil {
			n++
		}
	}
	return n
}
