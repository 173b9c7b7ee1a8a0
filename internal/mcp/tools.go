package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/membankd/internal/executor"
	"github.com/fyrsmithlabs/membankd/internal/membank"
	"github.com/fyrsmithlabs/membankd/internal/render"
	"github.com/fyrsmithlabs/membankd/internal/tracker"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.registerBankTools()
	s.registerSyncTools()
	s.registerGitHubTools()
	s.registerAdapterTools()
}

// ===== MEMORY BANK TOOLS =====

type bankReadInput struct {
	Role string `json:"role" jsonschema:"required,Document role (projectbrief productContext systemPatterns techContext activeContext progress projectIntelligence roadmap tasks)"`
}

type bankReadOutput struct {
	Role         string `json:"role" jsonschema:"Document role"`
	Body         string `json:"body" jsonschema:"Full document body"`
	LastModified string `json:"last_modified" jsonschema:"Last modification time (RFC 3339)"`
}

type bankWriteInput struct {
	Role string `json:"role" jsonschema:"required,Document role"`
	Body string `json:"body" jsonschema:"required,Full replacement body"`
}

type bankWriteOutput struct {
	Role  string `json:"role" jsonschema:"Document role"`
	Bytes int    `json:"bytes" jsonschema:"Bytes written"`
}

type bankAppendInput struct {
	Role     string `json:"role" jsonschema:"required,Document role"`
	Fragment string `json:"fragment" jsonschema:"required,Fragment appended as a pure suffix"`
}

type bankStatusOutput struct {
	Mode       string   `json:"mode" jsonschema:"Current execution mode (plan or act)"`
	StaleRoles []string `json:"stale_roles,omitempty" jsonschema:"Documents older than an ancestor"`
}

func (s *Server) registerBankTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "membank_read",
		Description: "Read the full body of one memory bank document",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args bankReadInput) (*mcp.CallToolResult, bankReadOutput, error) {
		doc, err := s.store.Load(ctx, membank.Role(args.Role))
		if err != nil {
			return nil, bankReadOutput{}, err
		}
		return nil, bankReadOutput{
			Role:         args.Role,
			Body:         doc.Body,
			LastModified: doc.LastModified.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}, nil
	})

	// Document drafting is permitted in both modes; only tracker
	// mutations are gated.
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "membank_write",
		Description: "Replace the full body of one memory bank document",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args bankWriteInput) (*mcp.CallToolResult, bankWriteOutput, error) {
		role := membank.Role(args.Role)
		if err := s.store.Write(ctx, role, args.Body); err != nil {
			return nil, bankWriteOutput{}, err
		}
		return nil, bankWriteOutput{Role: args.Role, Bytes: len(args.Body)}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "membank_append",
		Description: "Append a fragment to one memory bank document (pure suffix, no dedup)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args bankAppendInput) (*mcp.CallToolResult, bankWriteOutput, error) {
		role := membank.Role(args.Role)
		if err := s.store.Append(ctx, role, args.Fragment); err != nil {
			return nil, bankWriteOutput{}, err
		}
		return nil, bankWriteOutput{Role: args.Role, Bytes: len(args.Fragment)}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "membank_status",
		Description: "Report the execution mode and any stale documents",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, bankStatusOutput, error) {
		docs, err := s.store.LoadAll(ctx)
		if err != nil {
			return nil, bankStatusOutput{}, err
		}
		out := bankStatusOutput{Mode: string(s.exec.Gate().Mode())}
		for _, role := range membank.StaleRoles(docs) {
			out.StaleRoles = append(out.StaleRoles, string(role))
		}
		return nil, out, nil
	})
}

// ===== SYNC TOOLS =====

type syncPlanOutput struct {
	Rendered    string `json:"rendered" jsonschema:"Human-readable proposal"`
	Actions     int    `json:"actions" jsonschema:"Number of proposed actions"`
	Divergences int    `json:"divergences" jsonschema:"Number of divergences requiring a decision"`
	Warnings    int    `json:"warnings" jsonschema:"Number of marker warnings"`
}

type syncModeOutput struct {
	Mode string `json:"mode" jsonschema:"Execution mode after the transition"`
}

type syncApplyOutput struct {
	Rendered  string `json:"rendered" jsonschema:"Human-readable outcome"`
	Applied   int    `json:"applied" jsonschema:"Actions applied"`
	Remaining int    `json:"remaining" jsonschema:"Actions halted and surfaced for re-proposal"`
	Failed    string `json:"failed,omitempty" jsonschema:"Failed action description, if any"`
}

func (s *Server) registerSyncTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_plan",
		Description: "Run a reconciliation pass and render the proposal without applying anything",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, syncPlanOutput, error) {
		proposal, err := s.engine.Plan(ctx)
		if err != nil {
			return nil, syncPlanOutput{}, err
		}
		s.setPending(proposal)
		return nil, syncPlanOutput{
			Rendered:    render.Proposal(proposal),
			Actions:     len(proposal.Actions),
			Divergences: len(proposal.Divergences),
			Warnings:    len(proposal.Warnings),
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_confirm",
		Description: "Confirm the rendered proposal: the explicit plan-to-act transition",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, syncModeOutput, error) {
		if err := s.exec.Gate().Confirm(ctx); err != nil {
			return nil, syncModeOutput{}, err
		}
		return nil, syncModeOutput{Mode: string(s.exec.Gate().Mode())}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_apply",
		Description: "Apply the confirmed proposal in order, halting on the first failure",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, syncApplyOutput, error) {
		proposal, ok := s.takePending()
		if !ok {
			return nil, syncApplyOutput{}, fmt.Errorf("no pending proposal; run sync_plan first")
		}
		result, applyErr := s.exec.Apply(ctx, proposal)
		if result == nil {
			return nil, syncApplyOutput{}, applyErr
		}
		out := syncApplyOutput{
			Rendered:  render.ApplyResult(result.Applied, result.Failed, result.Remaining),
			Applied:   len(result.Applied),
			Remaining: len(result.Remaining),
		}
		if result.Failed != nil {
			out.Failed = fmt.Sprintf("%s (task %s)", result.Failed.Type, result.Failed.TaskID)
		}
		if applyErr != nil {
			s.logger.Warn("proposal halted", zap.Error(applyErr))
		}
		return nil, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_abort",
		Description: "Discard the pending proposal and return to plan mode",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, syncModeOutput, error) {
		s.takePending()
		gate := s.exec.Gate()
		if gate.Mode() == executor.ModeAct {
			if err := gate.Abort(ctx); err != nil {
				return nil, syncModeOutput{}, err
			}
		}
		return nil, syncModeOutput{Mode: string(gate.Mode())}, nil
	})
}

// ===== GITHUB TOOLS =====

type issueOutput struct {
	Number int    `json:"number" jsonschema:"Issue number"`
	Title  string `json:"title" jsonschema:"Issue title"`
	State  string `json:"state" jsonschema:"Issue state (open or closed)"`
	URL    string `json:"url,omitempty" jsonschema:"Issue URL"`
}

type getIssueInput struct {
	Number int `json:"number" jsonschema:"required,Issue number"`
}

type listIssuesInput struct {
	State string `json:"state,omitempty" jsonschema:"Filter by state (open closed all; default open)"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results (default 50)"`
}

type listIssuesOutput struct {
	Issues []issueOutput `json:"issues" jsonschema:"Matching issues"`
	Count  int           `json:"count" jsonschema:"Number of issues returned"`
}

type createIssueInput struct {
	Title  string   `json:"title" jsonschema:"required,Issue title"`
	Body   string   `json:"body,omitempty" jsonschema:"Issue body"`
	Labels []string `json:"labels,omitempty" jsonschema:"Labels to set"`
}

type updateIssueStateInput struct {
	Number int    `json:"number" jsonschema:"required,Issue number"`
	State  string `json:"state" jsonschema:"required,New state (open or closed)"`
}

type updateProjectFieldInput struct {
	ItemID string `json:"item_id" jsonschema:"required,Project item node ID"`
	Field  string `json:"field" jsonschema:"required,Field name"`
	Value  string `json:"value" jsonschema:"required,New value (option name for single-select fields)"`
}

type okOutput struct {
	OK bool `json:"ok" jsonschema:"Whether the call succeeded"`
}

func (s *Server) registerGitHubTools() {
	// Reads are permitted in both modes.
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "github_get_issue",
		Description: "Fetch one issue from the configured repository",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args getIssueInput) (*mcp.CallToolResult, issueOutput, error) {
		issue, err := s.client.GetIssue(ctx, args.Number)
		if err != nil {
			return nil, issueOutput{}, err
		}
		return nil, toIssueOutput(issue), nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "github_list_issues",
		Description: "List issues from the configured repository",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listIssuesInput) (*mcp.CallToolResult, listIssuesOutput, error) {
		limit := args.Limit
		if limit <= 0 {
			limit = 50
		}
		seq := s.client.ListIssues(ctx, tracker.IssueFilter{State: args.State})
		var out listIssuesOutput
		for len(out.Issues) < limit {
			issue, err := seq.Next(ctx)
			if err != nil {
				if errors.Is(err, tracker.ErrEndOfList) {
					break
				}
				return nil, listIssuesOutput{}, err
			}
			out.Issues = append(out.Issues, toIssueOutput(issue))
		}
		out.Count = len(out.Issues)
		return nil, out, nil
	})

	// Mutations are rejected outside act mode; the gate check happens
	// before anything reaches the tracker.
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "github_create_issue",
		Description: "Create an issue (act mode only)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args createIssueInput) (*mcp.CallToolResult, issueOutput, error) {
		if err := s.exec.Gate().RequireAct("github_create_issue"); err != nil {
			return nil, issueOutput{}, err
		}
		issue, err := s.client.CreateIssue(ctx, tracker.NewIssue{
			Title:  args.Title,
			Body:   args.Body,
			Labels: args.Labels,
		})
		if err != nil {
			return nil, issueOutput{}, err
		}
		return nil, toIssueOutput(issue), nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "github_update_issue_state",
		Description: "Open or close an issue (act mode only)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args updateIssueStateInput) (*mcp.CallToolResult, issueOutput, error) {
		if err := s.exec.Gate().RequireAct("github_update_issue_state"); err != nil {
			return nil, issueOutput{}, err
		}
		state := args.State
		issue, err := s.client.UpdateIssue(ctx, args.Number, tracker.IssueUpdate{State: &state})
		if err != nil {
			return nil, issueOutput{}, err
		}
		return nil, toIssueOutput(issue), nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "github_update_project_field",
		Description: "Set one field on a project board item (act mode only)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args updateProjectFieldInput) (*mcp.CallToolResult, okOutput, error) {
		if err := s.exec.Gate().RequireAct("github_update_project_field"); err != nil {
			return nil, okOutput{}, err
		}
		if err := s.client.UpdateProjectItemField(ctx, args.ItemID, args.Field, args.Value); err != nil {
			return nil, okOutput{}, err
		}
		return nil, okOutput{OK: true}, nil
	})

	// Deletion is never proposed by the engine; it exists only as a
	// direct, user-supervised call.
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "github_delete_project_item",
		Description: "Remove an item from the project board without touching its issue (act mode only)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct {
		ItemID string `json:"item_id" jsonschema:"required,Project item node ID"`
	}) (*mcp.CallToolResult, okOutput, error) {
		if err := s.exec.Gate().RequireAct("github_delete_project_item"); err != nil {
			return nil, okOutput{}, err
		}
		if err := s.client.DeleteProjectItem(ctx, args.ItemID); err != nil {
			return nil, okOutput{}, err
		}
		return nil, okOutput{OK: true}, nil
	})
}

func toIssueOutput(issue *tracker.Issue) issueOutput {
	return issueOutput{
		Number: issue.Number,
		Title:  issue.Title,
		State:  issue.State,
		URL:    issue.URL,
	}
}

// ===== SIDE-EFFECT TOOLS =====

type invokeInput struct {
	Tool string            `json:"tool" jsonschema:"required,Tool name (fs_read fs_write fs_append fs_list fs_mkdir deps_sync deps_add deps_remove lint_check lint_format)"`
	Args map[string]string `json:"args,omitempty" jsonschema:"Tool arguments"`
}

type invokeOutput struct {
	OK     bool   `json:"ok" jsonschema:"Whether the tool succeeded"`
	Output string `json:"output,omitempty" jsonschema:"Tool output"`
	Error  string `json:"error,omitempty" jsonschema:"Tool error, if any"`
}

func (s *Server) registerAdapterTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "tool_invoke",
		Description: "Invoke a side-effect leaf tool through the audited envelope",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args invokeInput) (*mcp.CallToolResult, invokeOutput, error) {
		result := s.adapter.Invoke(ctx, args.Tool, args.Args)
		return nil, invokeOutput{OK: result.OK, Output: result.Output, Error: result.Error}, nil
	})
}
