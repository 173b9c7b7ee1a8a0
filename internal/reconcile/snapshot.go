package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/membankd/internal/tracker"
)

// snapshot is the frozen remote state a pass computes against. The
// snapshot is a synchronization barrier: every lookup completes before
// proposal generation starts, and a partial snapshot is discarded,
// never acted upon.
type snapshot struct {
	// issues maps issue number to its current state, for every task
	// that carries a remote reference.
	issues map[int]*tracker.Issue

	// items maps issue number to the board item backing it. Empty
	// when no project board is configured.
	items map[int]*tracker.ProjectItem

	// excluded lists tasks whose remote reference cannot be
	// reconciled: it no longer resolves, or it points at a different
	// repository than the one configured.
	excluded []Divergence
}

// takeSnapshot resolves every referenced issue with bounded
// concurrency, then lists the project board once. Any tracker failure
// other than a missing issue aborts the snapshot.
func (e *Engine) takeSnapshot(ctx context.Context, tasks []TrackedTask) (*snapshot, error) {
	snap := &snapshot{
		issues: map[int]*tracker.Issue{},
		items:  map[int]*tracker.ProjectItem{},
	}

	linked := make([]TrackedTask, 0, len(tasks))
	for _, t := range tasks {
		if t.Ref == nil {
			continue
		}
		// Issue numbers only mean anything inside the configured
		// repository; looking a foreign reference up by number would
		// reconcile against an unrelated issue.
		if e.repo != "" && !strings.EqualFold(t.Ref.Repo, e.repo) {
			snap.excluded = append(snap.excluded, Divergence{
				Kind:   KindForeignReference,
				TaskID: t.ID,
				Ref:    t.Ref,
				Detail: fmt.Sprintf("task %s references %s outside the configured repository %s", t.ID, t.Ref, e.repo),
			})
			continue
		}
		linked = append(linked, t)
	}

	if len(linked) > 0 {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			mu       sync.Mutex
			firstErr error
			wg       sync.WaitGroup
		)
		work := make(chan TrackedTask)

		workers := e.workers
		if workers > len(linked) {
			workers = len(linked)
		}
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for t := range work {
					issue, err := e.client.GetIssue(ctx, t.Ref.Number)
					mu.Lock()
					switch {
					case err == nil:
						snap.issues[t.Ref.Number] = issue
					case errors.Is(err, tracker.ErrNotFound):
						snap.excluded = append(snap.excluded, Divergence{
							Kind:   KindOrphanedReference,
							TaskID: t.ID,
							Ref:    t.Ref,
							Detail: fmt.Sprintf("task %s references %s which no longer resolves", t.ID, t.Ref),
						})
					default:
						if firstErr == nil {
							firstErr = err
							cancel()
						}
					}
					mu.Unlock()
				}
			}()
		}

	feed:
		for _, t := range linked {
			select {
			case work <- t:
			case <-ctx.Done():
				break feed
			}
		}
		close(work)
		wg.Wait()

		if firstErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrReconciliationAborted, firstErr)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if e.hasProject {
		seq := e.client.ListProjectItems(ctx, tracker.ItemFilter{State: "ALL"})
		items, err := seq.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReconciliationAborted, err)
		}
		for _, item := range items {
			if item.IssueNumber > 0 {
				snap.items[item.IssueNumber] = item
			}
		}
	}

	// Divergences must order deterministically for rendering; the
	// worker pool discovers orphans in arbitrary order.
	sortDivergences(snap.excluded)
	return snap, nil
}
