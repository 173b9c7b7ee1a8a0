// Package reconcile computes divergence between the local memory bank
// and the remote tracker and produces ordered sync proposals. The
// engine never applies anything; application is the executor's job.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/membankd/internal/audit"
	"github.com/fyrsmithlabs/membankd/internal/membank"
	"github.com/fyrsmithlabs/membankd/internal/metrics"
	"github.com/fyrsmithlabs/membankd/internal/tracker"
)

const instrumentationName = "github.com/fyrsmithlabs/membankd/internal/reconcile"

// Config configures the reconciliation engine.
type Config struct {
	// Repo is the configured owner/name repository. Task references
	// pointing at any other repository are surfaced, never reconciled.
	Repo string

	// StatusField is the project board field compared against local
	// task status.
	StatusField string

	// SnapshotWorkers bounds concurrent issue lookups during
	// snapshotting.
	SnapshotWorkers int

	// ProjectConfigured enables project board comparison.
	ProjectConfigured bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		StatusField:     "Status",
		SnapshotWorkers: 4,
	}
}

// Engine runs reconciliation passes.
type Engine struct {
	client      tracker.Client
	store       *membank.Store
	trail       *audit.Trail
	repo        string
	statusField string
	workers     int
	hasProject  bool
	changes     ChangeSource
	logger      *zap.Logger
	tracer      trace.Tracer
}

// ChangeSource reports bank roles modified outside the store since the
// last call. The serve loop wires the fsnotify watcher here.
type ChangeSource interface {
	DrainChanged() []membank.Role
}

// NewEngine builds an engine. The logger may be nil.
func NewEngine(client tracker.Client, store *membank.Store, trail *audit.Trail, cfg Config, logger *zap.Logger) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("reconcile: tracker client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("reconcile: document store is required")
	}
	if trail == nil {
		return nil, fmt.Errorf("reconcile: audit trail is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatusField == "" {
		cfg.StatusField = "Status"
	}
	if cfg.SnapshotWorkers <= 0 {
		cfg.SnapshotWorkers = 4
	}
	return &Engine{
		client:      client,
		store:       store,
		trail:       trail,
		repo:        cfg.Repo,
		statusField: cfg.StatusField,
		workers:     cfg.SnapshotWorkers,
		hasProject:  cfg.ProjectConfigured,
		logger:      logger.Named("reconcile"),
		tracer:      otel.Tracer(instrumentationName),
	}, nil
}

// WatchChanges attaches a source of external document edits. Drained
// roles surface as warnings on the next pass. Not safe to call while a
// pass is running.
func (e *Engine) WatchChanges(src ChangeSource) {
	e.changes = src
}

// Plan runs one full reconciliation pass: load the bank, snapshot the
// remote state, and compute the ordered proposal. Nothing is applied.
// A tracker failure during snapshotting aborts the pass with
// ErrReconciliationAborted and no partial result.
func (e *Engine) Plan(ctx context.Context) (*Proposal, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.Plan")
	defer span.End()

	docs, err := e.store.LoadAll(ctx)
	if err != nil {
		metrics.ReconcilePasses.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("load memory bank: %w", err)
	}

	tasks, warnings := e.extractTasks(docs)

	if e.changes != nil {
		for _, role := range e.changes.DrainChanged() {
			warnings = append(warnings, Warning{
				Source: role,
				Detail: fmt.Sprintf("%s changed on disk outside the store since the last pass", role.Filename()),
			})
		}
	}

	snap, err := e.takeSnapshot(ctx, tasks)
	if err != nil {
		metrics.ReconcilePasses.WithLabelValues("aborted").Inc()
		span.RecordError(err)
		return nil, err
	}

	proposal := &Proposal{
		Warnings:    warnings,
		Divergences: snap.excluded,
		GeneratedAt: time.Now().UTC(),
	}

	excluded := map[string]bool{}
	for _, d := range snap.excluded {
		excluded[d.TaskID] = true
	}

	for _, task := range tasks {
		switch {
		case excluded[task.ID]:
			// Never recreate or touch a task whose reference does
			// not resolve inside the configured repository; the
			// user decides.
			continue
		case task.Ref == nil:
			e.proposeCreate(proposal, task)
		default:
			e.proposeUpdates(proposal, task, docs, snap)
		}
	}

	e.proposeStaleAppends(proposal, docs)

	sortActions(proposal.Actions)
	sortDivergences(proposal.Divergences)

	for _, a := range proposal.Actions {
		metrics.ProposedActions.WithLabelValues(string(a.Type)).Inc()
	}
	metrics.ReconcilePasses.WithLabelValues("completed").Inc()

	span.SetAttributes(
		attribute.Int("tasks", len(tasks)),
		attribute.Int("actions", len(proposal.Actions)),
		attribute.Int("divergences", len(proposal.Divergences)),
	)
	e.logger.Info("reconciliation pass complete",
		zap.Int("tasks", len(tasks)),
		zap.Int("actions", len(proposal.Actions)),
		zap.Int("divergences", len(proposal.Divergences)),
		zap.Int("warnings", len(proposal.Warnings)))
	return proposal, nil
}

// extractTasks scans the Tasks and Roadmap documents. A task id seen
// in both documents keeps its Tasks entry.
func (e *Engine) extractTasks(docs map[membank.Role]membank.Document) ([]TrackedTask, []Warning) {
	var tasks []TrackedTask
	var warnings []Warning
	seen := map[string]membank.Role{}

	for _, role := range []membank.Role{membank.RoleTasks, membank.RoleRoadmap} {
		doc, ok := docs[role]
		if !ok {
			continue
		}
		extracted, w := ExtractTasks(role, doc.Body)
		warnings = append(warnings, w...)
		for _, t := range extracted {
			if first, dup := seen[t.ID]; dup {
				warnings = append(warnings, Warning{
					Source: role, Line: t.Line,
					Detail: fmt.Sprintf("task-id %q already defined in %s, skipping", t.ID, first.Filename()),
				})
				continue
			}
			seen[t.ID] = role
			tasks = append(tasks, t)
		}
	}
	return tasks, warnings
}

// proposeCreate emits a CreateIssue for an unlinked task. A task
// already done locally chains the closing state change so the created
// issue converges in the same confirmed proposal.
func (e *Engine) proposeCreate(p *Proposal, task TrackedTask) {
	p.Actions = append(p.Actions, Action{
		Type:          ActionCreateIssue,
		TaskID:        task.ID,
		Title:         task.Title,
		Body:          fmt.Sprintf("Tracked as %s in %s.", task.ID, task.Source.Filename()),
		Role:          task.Source,
		Justification: fmt.Sprintf("task %s has no remote issue", task.ID),
	})
	if task.Status == StatusDone {
		p.Actions = append(p.Actions, Action{
			Type:   ActionUpdateIssueState,
			TaskID: task.ID,
			State:  "closed",
			// IssueNumber is resolved by the executor once the
			// chained creation has run.
			Justification: fmt.Sprintf("task %s is already done locally", task.ID),
		})
	}
}

// proposeUpdates compares a linked task against the snapshot.
func (e *Engine) proposeUpdates(p *Proposal, task TrackedTask, docs map[membank.Role]membank.Document, snap *snapshot) {
	issue, ok := snap.issues[task.Ref.Number]
	if !ok {
		return
	}

	if issue.State != task.Status.IssueState() {
		p.Actions = append(p.Actions, Action{
			Type:        ActionUpdateIssueState,
			TaskID:      task.ID,
			IssueNumber: task.Ref.Number,
			State:       task.Status.IssueState(),
			Justification: fmt.Sprintf("task %s is %s locally but issue %s is %s",
				task.ID, task.Status, task.Ref, issue.State),
		})

		// Local state drives the proposal, but a remote edit newer
		// than the source document means both sides moved; surface
		// the conflict instead of silently overwriting.
		if doc, ok := docs[task.Source]; ok && issue.UpdatedAt.After(doc.LastModified) {
			p.Divergences = append(p.Divergences, Divergence{
				Kind:   KindStatusConflict,
				TaskID: task.ID,
				Ref:    task.Ref,
				Detail: fmt.Sprintf("issue %s changed remotely after %s was last written; local status %s will be pushed",
					task.Ref, task.Source.Filename(), task.Status),
			})
		}
	}

	if !e.hasProject {
		return
	}
	item, ok := snap.items[task.Ref.Number]
	if !ok {
		return
	}
	if item.Fields[e.statusField] != task.Status.FieldValue() {
		p.Actions = append(p.Actions, Action{
			Type:        ActionUpdateProjectField,
			TaskID:      task.ID,
			IssueNumber: task.Ref.Number,
			ItemID:      item.ID,
			Field:       e.statusField,
			Value:       task.Status.FieldValue(),
			Justification: fmt.Sprintf("board %s for task %s is %q, local status maps to %q",
				e.statusField, task.ID, item.Fields[e.statusField], task.Status.FieldValue()),
		})
	}
}

// proposeStaleAppends emits AppendDocument for structural documents
// that predate applied remote actions recorded in the audit trail.
// Proposals are never persisted, so prior-pass outcomes are read from
// the trail. Only tracker-side actions count: an applied document
// append moves the file past the actions it summarizes, and counting
// it would flag the same documents again on every pass.
func (e *Engine) proposeStaleAppends(p *Proposal, docs map[membank.Role]membank.Document) {
	for _, role := range membank.AllRoles() {
		if !role.Structural() {
			continue
		}
		doc, ok := docs[role]
		if !ok {
			continue
		}
		applied, err := e.trail.AppliedSince(doc.LastModified)
		if err != nil {
			e.logger.Warn("audit trail read failed, skipping staleness check",
				zap.String("role", string(role)), zap.Error(err))
			continue
		}
		var remote []audit.Entry
		for _, entry := range applied {
			if remoteAction(entry) {
				remote = append(remote, entry)
			}
		}
		if len(remote) == 0 {
			continue
		}
		p.Actions = append(p.Actions, Action{
			Type:     ActionAppendDocument,
			Role:     role,
			Fragment: syncNote(remote),
			Justification: fmt.Sprintf("%s predates %d applied sync action(s)",
				role.Filename(), len(remote)),
		})
	}
}

// remoteAction reports whether an applied audit entry touched the
// tracker rather than the bank.
func remoteAction(e audit.Entry) bool {
	switch ActionType(e.Action) {
	case ActionCreateIssue, ActionUpdateIssueState, ActionUpdateProjectField:
		return true
	}
	return false
}

// syncNote renders applied audit entries as a Markdown fragment.
func syncNote(applied []audit.Entry) string {
	var b strings.Builder
	b.WriteString("\n## Sync update ")
	b.WriteString(applied[len(applied)-1].Time.Format("2006-01-02"))
	b.WriteString("\n\n")
	for _, entry := range applied {
		fmt.Fprintf(&b, "- %s", entry.Action)
		if entry.TaskID != "" {
			fmt.Fprintf(&b, " (task %s)", entry.TaskID)
		}
		if entry.Detail != "" {
			fmt.Fprintf(&b, ": %s", entry.Detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}
