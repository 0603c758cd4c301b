package runtime

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
)

// Run advances the session until it terminates or fails. Fan-out spawns one
// sub-traversal per eligible target; each inherits an immutable snapshot of
// context at the branch point and runs concurrently. All sub-traversals are
// joined before the merged terminal state is returned.
func (e *Engine) Run(ctx context.Context, state *domain.State) (*domain.State, error) {
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		switch state.Status {
		case domain.StatusTerminated:
			return state, nil
		case domain.StatusFailed:
			return state, stateFailure(state)
		case domain.StatusBranching:
			return e.runBranches(ctx, state)
		default:
			next, err := e.Step(ctx, state)
			if err != nil {
				return next, err
			}
			state = next
		}
	}
}

// runBranches forks one independent sub-traversal per eligible target, joins
// them, and merges their terminal contexts field by field. Two branches
// writing the same field with different values is a MergeConflict: the
// session fails with both values surfaced rather than one silently winning.
func (e *Engine) runBranches(ctx context.Context, state *domain.State) (*domain.State, error) {
	targets := append([]string(nil), state.EligibleTargets...)
	subs := make([]*domain.State, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		sub := state.Clone()
		sub.Status = domain.StatusAtNode
		sub.Current = target
		sub.EligibleTargets = nil
		sub.Branch = branchLabel(state.Branch, target)
		g.Go(func() error {
			out, err := e.Run(gctx, sub)
			subs[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for _, sub := range subs {
			if sub != nil && sub.Status == domain.StatusFailed {
				return sub, err
			}
		}
		return state, err
	}

	return e.join(ctx, state, targets, subs)
}

// join merges the terminal branch states back into one terminal state.
func (e *Engine) join(ctx context.Context, branchPoint *domain.State, targets []string, subs []*domain.State) (*domain.State, error) {
	merged := branchPoint.Clone()
	merged.Status = domain.StatusTerminated
	merged.EligibleTargets = nil
	merged.Failure = nil

	writtenBy := make(map[string]string) // field -> branch value already merged

	for i, sub := range subs {
		// A branch's writes are what its own records collected after the
		// branch point. Writing a value equal to the branch-point base still
		// counts and must agree with a sibling's write on the same field.
		writes := make(map[string]string)
		for _, rec := range sub.Path[len(branchPoint.Path):] {
			for field, value := range rec.Fields {
				writes[field] = value
			}
		}
		fields := make([]string, 0, len(writes))
		for field := range writes {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		for _, field := range fields {
			value := writes[field]
			if prior, dup := writtenBy[field]; dup {
				if prior != value {
					conflict := &domain.MergeConflict{Field: field, A: prior, B: value}
					failed := branchPoint.Clone()
					failed.Status = domain.StatusFailed
					failed.Failure = &domain.Failure{
						NodeID:  targets[i],
						Kind:    domain.FailureKind(conflict),
						Message: conflict.Error(),
					}
					if e.hooks.OnFailure != nil {
						e.hooks.OnFailure(ctx, &domain.FailureEvent{
							Timestamp: e.now(),
							SessionID: branchPoint.SessionID,
							NodeID:    targets[i],
							Kind:      failed.Failure.Kind,
						})
					}
					return failed, conflict
				}
				continue
			}
			writtenBy[field] = value
			merged.Context.Set(field, value)
		}

		// Branch records follow the trunk records, in target order.
		merged.Path = append(merged.Path, sub.Path[len(branchPoint.Path):]...)
		for id := range sub.Visited {
			merged.Visited[id] = true
		}
	}
	return merged, nil
}

// Rejoin folds persisted branch rows back into a replayed trunk state,
// re-running the join's conflict detection. Two concurrent branches that
// wrote the same field with different values fail the session again on
// replay; a conflict recorded in the rows never resurfaces as a clean
// terminal state with one value silently winning.
func (e *Engine) Rejoin(state *domain.State, rows []ports.StepRow) error {
	var labels []string
	byLabel := make(map[string][]ports.StepRow)
	for _, row := range rows {
		if _, seen := byLabel[row.Branch]; !seen {
			labels = append(labels, row.Branch)
		}
		byLabel[row.Branch] = append(byLabel[row.Branch], row)
	}
	sort.Strings(labels)

	type write struct {
		label string
		value string
	}
	merged := make(map[string]write)
	for _, label := range labels {
		for _, row := range byLabel[label] {
			fields := make([]string, 0, len(row.Fields))
			for field := range row.Fields {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			for _, field := range fields {
				value := row.Fields[field]
				if prior, dup := merged[field]; dup && !sequentialLabels(prior.label, label) && prior.value != value {
					conflict := &domain.MergeConflict{Field: field, A: prior.value, B: value}
					state.Status = domain.StatusFailed
					state.Failure = &domain.Failure{
						NodeID:  row.NodeID,
						Kind:    domain.FailureKind(conflict),
						Message: conflict.Error(),
					}
					return conflict
				}
				merged[field] = write{label: label, value: value}
			}
		}
	}

	for _, label := range labels {
		for _, row := range byLabel[label] {
			state.Visited[row.NodeID] = true
			state.Path = append(state.Path, domain.StepRecord{
				NodeID:    row.NodeID,
				Prompt:    row.Prompt,
				RawReply:  row.RawReply,
				Fields:    row.Fields,
				Timestamp: row.Timestamp,
			})
		}
	}
	for field, w := range merged {
		state.Context.Set(field, w.value)
	}
	return nil
}

// sequentialLabels reports whether two branch labels lie on one line of
// descent, so their writes happened in order rather than concurrently.
func sequentialLabels(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

func branchLabel(parent, target string) string {
	if parent == "" {
		return target
	}
	return parent + "/" + target
}

func stateFailure(state *domain.State) error {
	if state.Failure == nil {
		return nil
	}
	return &sessionFailedError{failure: *state.Failure}
}

// sessionFailedError reports a previously recorded failure when Run is
// re-entered on a failed session.
type sessionFailedError struct {
	failure domain.Failure
}

func (e *sessionFailedError) Error() string {
	return "session failed at node " + e.failure.NodeID + " (" + e.failure.Kind + "): " + e.failure.Message
}
