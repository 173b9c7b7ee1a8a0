// Package tracker talks to the remote issue tracker. The concrete
// implementation targets GitHub issues and Projects V2 boards; the
// Client interface keeps the reconciliation engine and executor
// independent of the transport.
package tracker

import "context"

// Client is the remote tracker surface used by the rest of membankd.
// All methods retry transient failures internally and return errors
// wrapping the package sentinels once the retry budget is spent.
type Client interface {
	// CreateIssue creates an issue and returns its snapshot.
	CreateIssue(ctx context.Context, issue NewIssue) (*Issue, error)

	// GetIssue fetches a single issue by number.
	GetIssue(ctx context.Context, number int) (*Issue, error)

	// UpdateIssue applies a partial mutation to an issue.
	UpdateIssue(ctx context.Context, number int, update IssueUpdate) (*Issue, error)

	// ListIssues returns a lazy sequence over issues matching the
	// filter.
	ListIssues(ctx context.Context, filter IssueFilter) *IssueSeq

	// ListProjectItems returns a lazy sequence over the configured
	// project board's items.
	ListProjectItems(ctx context.Context, filter ItemFilter) *ItemSeq

	// CreateProjectItem adds an issue or draft issue to the board and
	// returns the new item's ID.
	CreateProjectItem(ctx context.Context, item NewProjectItem) (string, error)

	// UpdateProjectItemField sets a single field on a board item.
	// For single-select fields value is matched against option names
	// case-insensitively; other fields receive it as text.
	UpdateProjectItemField(ctx context.Context, itemID, field, value string) error

	// DeleteProjectItem removes an item from the board. The backing
	// issue, if any, is left untouched.
	DeleteProjectItem(ctx context.Context, itemID string) error
}
