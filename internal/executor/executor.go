// Package executor applies confirmed sync proposals under the mode
// gate and records every outcome in the audit trail.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/membankd/internal/audit"
	"github.com/fyrsmithlabs/membankd/internal/membank"
	"github.com/fyrsmithlabs/membankd/internal/metrics"
	"github.com/fyrsmithlabs/membankd/internal/reconcile"
	"github.com/fyrsmithlabs/membankd/internal/tracker"
)

const instrumentationName = "github.com/fyrsmithlabs/membankd/internal/executor"

// ApplyResult reports how far a proposal got. On a per-action failure
// the applied prefix persists, the failed action and the unapplied
// remainder are surfaced for re-proposal, and nothing past the failure
// was attempted.
type ApplyResult struct {
	Applied   []reconcile.Action
	Failed    *reconcile.Action
	Remaining []reconcile.Action
}

// Executor drives confirmed proposals against the tracker and the
// memory bank.
type Executor struct {
	gate   *Gate
	client tracker.Client
	store  *membank.Store
	trail  *audit.Trail
	repo   string
	logger *zap.Logger
	tracer trace.Tracer
}

// NewExecutor builds an executor. repo is the full repository name
// used when annotating documents with created issue references. The
// logger may be nil.
func NewExecutor(gate *Gate, client tracker.Client, store *membank.Store, trail *audit.Trail, repo string, logger *zap.Logger) (*Executor, error) {
	if gate == nil {
		return nil, fmt.Errorf("executor: mode gate is required")
	}
	if client == nil {
		return nil, fmt.Errorf("executor: tracker client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("executor: document store is required")
	}
	if trail == nil {
		return nil, fmt.Errorf("executor: audit trail is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		gate:   gate,
		client: client,
		store:  store,
		trail:  trail,
		repo:   repo,
		logger: logger.Named("executor"),
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

// Gate exposes the mode gate for callers that render and confirm.
func (e *Executor) Gate() *Gate {
	return e.gate
}

// Apply runs the actions of a confirmed proposal in order. It requires
// Act mode; a proposal is consumed exactly once. On the first action
// failure the remainder is halted, the gate returns to Plan, and the
// result carries the failed action and the unapplied tail. On full
// success the gate also returns to Plan.
func (e *Executor) Apply(ctx context.Context, proposal *reconcile.Proposal) (*ApplyResult, error) {
	ctx, span := e.tracer.Start(ctx, "executor.Apply",
		trace.WithAttributes(attribute.Int("actions", len(proposal.Actions))))
	defer span.End()

	if err := e.gate.RequireAct("apply proposal"); err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	// Issue numbers created earlier in this proposal, keyed by task
	// id, resolve the chained state updates that were proposed before
	// the issue existed.
	created := map[string]*tracker.Issue{}

	for i, action := range proposal.Actions {
		err := e.applyAction(ctx, action, created)
		if err != nil {
			result.Failed = &proposal.Actions[i]
			result.Remaining = proposal.Actions[i+1:]
			metrics.AppliedActions.WithLabelValues(string(action.Type), "failed").Inc()
			e.recordOutcome(ctx, audit.KindActionFailed, action, err)
			e.logger.Error("action failed, halting proposal",
				zap.String("type", string(action.Type)),
				zap.String("task", action.TaskID),
				zap.Int("remaining", len(result.Remaining)),
				zap.Error(err))
			span.RecordError(err)
			e.recordToBank(ctx, fmt.Sprintf("sync halted at %s for task %s after %d applied actions, %d remaining",
				action.Type, action.TaskID, len(result.Applied), len(result.Remaining)))
			if abortErr := e.gate.Abort(ctx); abortErr != nil {
				e.logger.Error("abort transition failed", zap.Error(abortErr))
			}
			return result, fmt.Errorf("apply %s for task %s: %w", action.Type, action.TaskID, err)
		}
		result.Applied = append(result.Applied, action)
		metrics.AppliedActions.WithLabelValues(string(action.Type), "ok").Inc()
		e.recordOutcome(ctx, audit.KindActionApplied, action, nil)
	}

	if len(result.Applied) > 0 {
		e.recordToBank(ctx, fmt.Sprintf("sync applied %d actions", len(result.Applied)))
	}
	if err := e.gate.Complete(ctx); err != nil {
		return result, err
	}
	e.logger.Info("proposal applied", zap.Int("actions", len(result.Applied)))
	return result, nil
}

func (e *Executor) applyAction(ctx context.Context, action reconcile.Action, created map[string]*tracker.Issue) error {
	switch action.Type {
	case reconcile.ActionCreateIssue:
		issue, err := e.client.CreateIssue(ctx, tracker.NewIssue{
			Title: action.Title,
			Body:  action.Body,
		})
		if err != nil {
			return err
		}
		created[action.TaskID] = issue
		// Writing the reference back is what makes the next pass
		// converge instead of creating the issue again.
		return e.annotateSource(ctx, action, issue.Number)

	case reconcile.ActionUpdateIssueState:
		number := action.IssueNumber
		if number == 0 {
			issue, ok := created[action.TaskID]
			if !ok {
				return fmt.Errorf("no created issue to resolve for task %s", action.TaskID)
			}
			number = issue.Number
		}
		state := action.State
		_, err := e.client.UpdateIssue(ctx, number, tracker.IssueUpdate{State: &state})
		return err

	case reconcile.ActionUpdateProjectField:
		return e.client.UpdateProjectItemField(ctx, action.ItemID, action.Field, action.Value)

	case reconcile.ActionWriteDocument:
		return e.store.Write(ctx, action.Role, action.Fragment)

	case reconcile.ActionAppendDocument:
		return e.store.Append(ctx, action.Role, action.Fragment)
	}
	return fmt.Errorf("unknown action type %q", action.Type)
}

// annotateSource links the created issue into the task's source
// document.
func (e *Executor) annotateSource(ctx context.Context, action reconcile.Action, number int) error {
	doc, err := e.store.Load(ctx, action.Role)
	if err != nil {
		return fmt.Errorf("load %s: %w", action.Role.Filename(), err)
	}
	ref := reconcile.RemoteRef{Repo: e.repo, Number: number}
	body, err := reconcile.AnnotateRemoteRef(doc.Body, action.TaskID, ref)
	if err != nil {
		return fmt.Errorf("annotate %s: %w", action.Role.Filename(), err)
	}
	return e.store.Write(ctx, action.Role, body)
}

// recordToBank writes an outcome note into the progress document. The
// note is advisory; a failed append never fails the apply, the audit
// trail already holds the authoritative record.
func (e *Executor) recordToBank(ctx context.Context, note string) {
	fragment := fmt.Sprintf("\n- %s %s\n", time.Now().UTC().Format(time.RFC3339), note)
	if err := e.store.Append(ctx, membank.RoleProgress, fragment); err != nil {
		e.logger.Error("progress note append failed", zap.Error(err))
	}
}

func (e *Executor) recordOutcome(ctx context.Context, kind audit.Kind, action reconcile.Action, applyErr error) {
	entry := audit.Entry{
		Kind:   kind,
		Action: string(action.Type),
		TaskID: action.TaskID,
		Role:   string(action.Role),
		Detail: action.Justification,
	}
	if applyErr != nil {
		entry.Error = applyErr.Error()
	}
	if err := e.trail.Record(ctx, entry); err != nil {
		e.logger.Error("audit record failed", zap.Error(err))
	}
}
