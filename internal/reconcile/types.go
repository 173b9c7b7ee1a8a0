package reconcile

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/membankd/internal/membank"
)

// Status is the local task status recorded in the memory bank.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// ParseStatus normalizes a status annotation. It accepts the common
// spellings found in task documents.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo", "to-do", "open", "pending":
		return StatusTodo, true
	case "in-progress", "inprogress", "in progress", "doing", "wip":
		return StatusInProgress, true
	case "done", "closed", "complete", "completed":
		return StatusDone, true
	}
	return "", false
}

// IssueState maps the local status onto the remote issue state.
func (s Status) IssueState() string {
	if s == StatusDone {
		return "closed"
	}
	return "open"
}

// FieldValue maps the local status onto the project board status
// field value.
func (s Status) FieldValue() string {
	switch s {
	case StatusInProgress:
		return "In Progress"
	case StatusDone:
		return "Done"
	}
	return "Todo"
}

var remoteRefPattern = regexp.MustCompile(`^([\w.-]+/[\w.-]+)#(\d+)$`)

// RemoteRef links a local task to a tracker issue.
type RemoteRef struct {
	Repo   string
	Number int
}

// ParseRemoteRef parses an "owner/repo#N" reference.
func ParseRemoteRef(s string) (RemoteRef, error) {
	m := remoteRefPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return RemoteRef{}, fmt.Errorf("invalid remote reference %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return RemoteRef{}, fmt.Errorf("invalid issue number in %q", s)
	}
	return RemoteRef{Repo: m[1], Number: n}, nil
}

func (r RemoteRef) String() string {
	return fmt.Sprintf("%s#%d", r.Repo, r.Number)
}

// TrackedTask is one task entry extracted from the Tasks or Roadmap
// document.
type TrackedTask struct {
	ID     string
	Title  string
	Status Status
	Source membank.Role
	Line   int
	Ref    *RemoteRef
}

// ActionType identifies one atomic sync action. The declaration order
// is the published application order: tracker writes run first, with
// issue creation before state changes and state changes before board
// fields, document writes follow, and deletion is never proposed
// automatically.
type ActionType string

const (
	ActionCreateIssue        ActionType = "create_issue"
	ActionUpdateIssueState   ActionType = "update_issue_state"
	ActionUpdateProjectField ActionType = "update_project_field"
	ActionWriteDocument      ActionType = "write_document"
	ActionAppendDocument     ActionType = "append_document"
)

var actionOrder = map[ActionType]int{
	ActionCreateIssue:        0,
	ActionUpdateIssueState:   1,
	ActionUpdateProjectField: 2,
	ActionWriteDocument:      3,
	ActionAppendDocument:     4,
}

// Action is one atomic step of a sync proposal.
type Action struct {
	Type   ActionType
	TaskID string

	// Issue actions.
	Title       string
	Body        string
	IssueNumber int
	State       string

	// Project field actions.
	ItemID string
	Field  string
	Value  string

	// Document actions.
	Role     membank.Role
	Fragment string

	// Justification explains the action to the user. Every action
	// carries one; nothing is applied without a prior render.
	Justification string
}

// DivergenceKind categorizes detected local/remote divergence that the
// engine refuses to heal on its own.
type DivergenceKind string

const (
	// KindOrphanedReference: a local task references an issue that no
	// longer resolves.
	KindOrphanedReference DivergenceKind = "orphaned_reference"

	// KindStatusConflict: both sides changed the same task since the
	// last pass. Local state still drives the proposal; the conflict
	// is surfaced for the user.
	KindStatusConflict DivergenceKind = "status_conflict"

	// KindForeignReference: a local task references an issue in a
	// repository other than the configured one. Never reconciled.
	KindForeignReference DivergenceKind = "foreign_reference"
)

// Divergence is a detected condition requiring an explicit user
// decision.
type Divergence struct {
	Kind   DivergenceKind
	TaskID string
	Ref    *RemoteRef
	Detail string
}

// Warning flags an ambiguous or malformed task marker. Warnings never
// fail a pass.
type Warning struct {
	Source membank.Role
	Line   int
	Detail string
}

// Proposal is the ordered outcome of one reconciliation pass. It is
// never persisted; a proposal is consumed exactly once, applied or
// discarded.
type Proposal struct {
	Actions     []Action
	Divergences []Divergence
	Warnings    []Warning
	GeneratedAt time.Time
}

// Empty reports whether the proposal carries no actions.
func (p *Proposal) Empty() bool {
	return len(p.Actions) == 0
}

// sortDivergences orders divergences by kind then task id.
func sortDivergences(divs []Divergence) {
	sort.SliceStable(divs, func(i, j int) bool {
		if divs[i].Kind != divs[j].Kind {
			return divs[i].Kind < divs[j].Kind
		}
		return divs[i].TaskID < divs[j].TaskID
	})
}

// sortActions orders actions by type, stable-sorted by task id within
// each type. Document appends carry no task id and sort last within
// their type by role.
func sortActions(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		oi, oj := actionOrder[actions[i].Type], actionOrder[actions[j].Type]
		if oi != oj {
			return oi < oj
		}
		if actions[i].TaskID != actions[j].TaskID {
			return actions[i].TaskID < actions[j].TaskID
		}
		return actions[i].Role < actions[j].Role
	})
}
