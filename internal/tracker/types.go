package tracker

import (
	"context"
	"errors"
	"time"
)

// Issue is a snapshot of a remote tracker issue.
type Issue struct {
	Number    int
	NodeID    string
	Title     string
	Body      string
	State     string
	Labels    []string
	Assignees []string
	Milestone string
	URL       string
	UpdatedAt time.Time
}

// NewIssue carries the fields for issue creation.
type NewIssue struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
	Milestone int
}

// IssueUpdate carries a partial issue mutation. Nil fields are left
// untouched. Labels and Assignees replace the remote sets wholesale.
// MilestoneNumber -1 clears the milestone.
type IssueUpdate struct {
	Title           *string
	Body            *string
	State           *string
	Labels          *[]string
	Assignees       *[]string
	MilestoneNumber *int
}

// IssueFilter narrows issue listings. State is "open", "closed", or
// "all"; empty means "open".
type IssueFilter struct {
	State     string
	Labels    []string
	Assignee  string
	Milestone string
	Since     time.Time
}

// ProjectItem is a snapshot of a Projects V2 board item.
type ProjectItem struct {
	ID           string
	Title        string
	Body         string
	ContentType  string
	ContentState string
	IssueNumber  int
	Repository   string
	Fields       map[string]string
	URL          string
}

// NewProjectItem carries the fields for project item creation. If
// ContentNodeID is set the existing issue is added to the board,
// otherwise a draft issue is created from Title and Body.
type NewProjectItem struct {
	Title         string
	Body          string
	ContentNodeID string
}

// ItemFilter narrows project item listings. State is "OPEN", "CLOSED",
// or "ALL"; empty means "ALL". Draft issues count as open.
type ItemFilter struct {
	State string
}

// IssueSeq yields issues one page at a time. It is not safe for
// concurrent use and cannot be restarted after an error.
type IssueSeq struct {
	fetch func(ctx context.Context) ([]*Issue, bool, error)
	buf   []*Issue
	done  bool
	err   error
}

// NewIssueSeq builds a sequence from a page fetcher. The fetcher
// returns one batch and whether more pages remain; it is called again
// only while it reports more.
func NewIssueSeq(fetch func(ctx context.Context) ([]*Issue, bool, error)) *IssueSeq {
	return &IssueSeq{fetch: fetch}
}

// Next returns the next issue, fetching further pages as needed. It
// returns ErrEndOfList once the sequence is exhausted.
func (s *IssueSeq) Next(ctx context.Context) (*Issue, error) {
	for len(s.buf) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			return nil, ErrEndOfList
		}
		batch, more, err := s.fetch(ctx)
		if err != nil {
			s.err = err
			return nil, err
		}
		s.buf = batch
		s.done = !more
	}
	issue := s.buf[0]
	s.buf = s.buf[1:]
	return issue, nil
}

// Collect drains the sequence into a slice.
func (s *IssueSeq) Collect(ctx context.Context) ([]*Issue, error) {
	var out []*Issue
	for {
		issue, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfList) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, issue)
	}
}

// ItemSeq yields project items one page at a time. Semantics match
// IssueSeq.
type ItemSeq struct {
	fetch func(ctx context.Context) ([]*ProjectItem, bool, error)
	buf   []*ProjectItem
	done  bool
	err   error
}

// NewItemSeq builds a sequence from a page fetcher.
func NewItemSeq(fetch func(ctx context.Context) ([]*ProjectItem, bool, error)) *ItemSeq {
	return &ItemSeq{fetch: fetch}
}

// Next returns the next project item, or ErrEndOfList when exhausted.
func (s *ItemSeq) Next(ctx context.Context) (*ProjectItem, error) {
	for len(s.buf) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			return nil, ErrEndOfList
		}
		batch, more, err := s.fetch(ctx)
		if err != nil {
			s.err = err
			return nil, err
		}
		s.buf = batch
		s.done = !more
	}
	item := s.buf[0]
	s.buf = s.buf[1:]
	return item, nil
}

// Collect drains the sequence into a slice.
func (s *ItemSeq) Collect(ctx context.Context) ([]*ProjectItem, error) {
	var out []*ProjectItem
	for {
		item, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfList) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, item)
	}
}
