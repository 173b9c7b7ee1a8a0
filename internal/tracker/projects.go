package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
)

var projectURLPattern = regexp.MustCompile(`^https://github\.com/(orgs|users)/([^/]+)/projects/(\d+)`)

// boardIDs caches resolved Projects V2 node IDs for the configured
// board: the project itself plus the status field and its options.
type boardIDs struct {
	projectID     string
	statusFieldID string
	// options maps lowercased option name to option ID. Empty when
	// the status field is not single-select.
	options map[string]string
	// fields maps lowercased field name to field ID.
	fields map[string]string
	// fieldOptions maps lowercased field name to its option map.
	fieldOptions map[string]map[string]string
}

// parseProjectURL extracts the owner type, login, and project number
// from a Projects V2 board URL.
func parseProjectURL(url string) (ownerType, login string, number int, err error) {
	m := projectURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", 0, fmt.Errorf("tracker: invalid project URL %q", url)
	}
	number, err = strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("tracker: invalid project number in %q", url)
	}
	switch m[1] {
	case "orgs":
		ownerType = "organization"
	case "users":
		ownerType = "user"
	}
	return ownerType, m[2], number, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

// graphql executes a GraphQL document against the v4 API and decodes
// the data payload into out. In-body errors are classified the same
// way as HTTP errors.
func (c *GitHubClient) graphql(ctx context.Context, name, query string, variables map[string]any, out any) error {
	var gqlResp graphQLResponse
	err := c.call(ctx, name, func() (*github.Response, error) {
		req, err := c.gh.NewRequest("POST", "graphql", graphQLRequest{Query: query, Variables: variables})
		if err != nil {
			return nil, err
		}
		return c.gh.Do(ctx, req, &gqlResp)
	})
	if err != nil {
		return err
	}
	for _, e := range gqlResp.Errors {
		if e.Type == "NOT_FOUND" {
			return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
		}
	}
	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("tracker: graphql: %s", gqlResp.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return fmt.Errorf("tracker: decode graphql response: %w", err)
		}
	}
	return nil
}

const projectIDQuery = `
query($login: String!, $number: Int!) {
  organization(login: $login) { projectV2(number: $number) { id } }
}`

const userProjectIDQuery = `
query($login: String!, $number: Int!) {
  user(login: $login) { projectV2(number: $number) { id } }
}`

const projectFieldsQuery = `
query($project: ID!) {
  node(id: $project) {
    ... on ProjectV2 {
      fields(first: 50) {
        nodes {
          ... on ProjectV2FieldCommon { id name }
          ... on ProjectV2SingleSelectField { id name options { id name } }
        }
      }
    }
  }
}`

// resolveBoard looks up and caches the project and field node IDs.
func (c *GitHubClient) resolveBoard(ctx context.Context) (*boardIDs, error) {
	c.boardMu.Lock()
	defer c.boardMu.Unlock()
	if c.board != nil {
		return c.board, nil
	}
	if c.project == "" {
		return nil, fmt.Errorf("tracker: no project board configured")
	}
	ownerType, login, number, err := parseProjectURL(c.project)
	if err != nil {
		return nil, err
	}

	query := projectIDQuery
	if ownerType == "user" {
		query = userProjectIDQuery
	}
	var idResp struct {
		Organization *struct {
			ProjectV2 *struct {
				ID string `json:"id"`
			} `json:"projectV2"`
		} `json:"organization"`
		User *struct {
			ProjectV2 *struct {
				ID string `json:"id"`
			} `json:"projectV2"`
		} `json:"user"`
	}
	vars := map[string]any{"login": login, "number": number}
	if err := c.graphql(ctx, "projects.resolve", query, vars, &idResp); err != nil {
		return nil, fmt.Errorf("resolve project %q: %w", c.project, err)
	}

	board := &boardIDs{
		fields:       map[string]string{},
		fieldOptions: map[string]map[string]string{},
	}
	switch {
	case idResp.Organization != nil && idResp.Organization.ProjectV2 != nil:
		board.projectID = idResp.Organization.ProjectV2.ID
	case idResp.User != nil && idResp.User.ProjectV2 != nil:
		board.projectID = idResp.User.ProjectV2.ID
	default:
		return nil, fmt.Errorf("resolve project %q: %w", c.project, ErrNotFound)
	}

	var fieldsResp struct {
		Node struct {
			Fields struct {
				Nodes []struct {
					ID      string `json:"id"`
					Name    string `json:"name"`
					Options []struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"options"`
				} `json:"nodes"`
			} `json:"fields"`
		} `json:"node"`
	}
	if err := c.graphql(ctx, "projects.fields", projectFieldsQuery,
		map[string]any{"project": board.projectID}, &fieldsResp); err != nil {
		return nil, fmt.Errorf("resolve project fields: %w", err)
	}
	for _, f := range fieldsResp.Node.Fields.Nodes {
		if f.ID == "" {
			continue
		}
		key := strings.ToLower(f.Name)
		board.fields[key] = f.ID
		if len(f.Options) > 0 {
			opts := make(map[string]string, len(f.Options))
			for _, o := range f.Options {
				opts[strings.ToLower(o.Name)] = o.ID
			}
			board.fieldOptions[key] = opts
		}
	}

	c.board = board
	return board, nil
}

const projectItemsQuery = `
query($project: ID!, $cursor: String) {
  node(id: $project) {
    ... on ProjectV2 {
      items(first: 50, after: $cursor) {
        pageInfo { hasNextPage endCursor }
        nodes {
          id
          fieldValues(first: 20) {
            nodes {
              ... on ProjectV2ItemFieldTextValue { text field { ... on ProjectV2FieldCommon { name } } }
              ... on ProjectV2ItemFieldSingleSelectValue { name field { ... on ProjectV2FieldCommon { name } } }
              ... on ProjectV2ItemFieldDateValue { date field { ... on ProjectV2FieldCommon { name } } }
            }
          }
          content {
            __typename
            ... on DraftIssue { title body }
            ... on Issue { number title body state url repository { nameWithOwner } }
            ... on PullRequest { number title state url repository { nameWithOwner } }
          }
        }
      }
    }
  }
}`

type itemsPage struct {
	Node struct {
		Items struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []struct {
				ID          string `json:"id"`
				FieldValues struct {
					Nodes []struct {
						Text  string `json:"text"`
						Name  string `json:"name"`
						Date  string `json:"date"`
						Field struct {
							Name string `json:"name"`
						} `json:"field"`
					} `json:"nodes"`
				} `json:"fieldValues"`
				Content struct {
					TypeName   string `json:"__typename"`
					Number     int    `json:"number"`
					Title      string `json:"title"`
					Body       string `json:"body"`
					State      string `json:"state"`
					URL        string `json:"url"`
					Repository struct {
						NameWithOwner string `json:"nameWithOwner"`
					} `json:"repository"`
				} `json:"content"`
			} `json:"nodes"`
		} `json:"items"`
	} `json:"node"`
}

// ListProjectItems returns a lazy sequence over board items matching
// the filter. Draft issues are treated as open.
func (c *GitHubClient) ListProjectItems(ctx context.Context, filter ItemFilter) *ItemSeq {
	state := strings.ToUpper(filter.State)
	if state == "" {
		state = "ALL"
	}
	cursor := ""

	return NewItemSeq(func(ctx context.Context) ([]*ProjectItem, bool, error) {
		board, err := c.resolveBoard(ctx)
		if err != nil {
			return nil, false, err
		}
		vars := map[string]any{"project": board.projectID}
		if cursor != "" {
			vars["cursor"] = cursor
		}
		var page itemsPage
		if err := c.graphql(ctx, "projects.items", projectItemsQuery, vars, &page); err != nil {
			return nil, false, fmt.Errorf("list project items: %w", err)
		}

		out := make([]*ProjectItem, 0, len(page.Node.Items.Nodes))
		for _, n := range page.Node.Items.Nodes {
			item := &ProjectItem{
				ID:           n.ID,
				Title:        n.Content.Title,
				Body:         n.Content.Body,
				ContentType:  n.Content.TypeName,
				ContentState: n.Content.State,
				IssueNumber:  n.Content.Number,
				Repository:   n.Content.Repository.NameWithOwner,
				URL:          n.Content.URL,
				Fields:       map[string]string{},
			}
			if item.ContentType == "DraftIssue" {
				item.ContentState = "OPEN"
			}
			for _, fv := range n.FieldValues.Nodes {
				if fv.Field.Name == "" {
					continue
				}
				switch {
				case fv.Name != "":
					item.Fields[fv.Field.Name] = fv.Name
				case fv.Text != "":
					item.Fields[fv.Field.Name] = fv.Text
				case fv.Date != "":
					item.Fields[fv.Field.Name] = fv.Date
				}
			}
			if state != "ALL" && item.ContentState != state {
				continue
			}
			out = append(out, item)
		}
		cursor = page.Node.Items.PageInfo.EndCursor
		return out, page.Node.Items.PageInfo.HasNextPage, nil
	})
}

const addItemMutation = `
mutation($project: ID!, $content: ID!) {
  addProjectV2ItemById(input: {projectId: $project, contentId: $content}) {
    item { id }
  }
}`

const addDraftMutation = `
mutation($project: ID!, $title: String!, $body: String) {
  addProjectV2DraftIssue(input: {projectId: $project, title: $title, body: $body}) {
    projectItem { id }
  }
}`

// CreateProjectItem adds an issue or draft issue to the board.
func (c *GitHubClient) CreateProjectItem(ctx context.Context, item NewProjectItem) (string, error) {
	board, err := c.resolveBoard(ctx)
	if err != nil {
		return "", err
	}

	if item.ContentNodeID != "" {
		var resp struct {
			AddProjectV2ItemByID struct {
				Item struct {
					ID string `json:"id"`
				} `json:"item"`
			} `json:"addProjectV2ItemById"`
		}
		vars := map[string]any{"project": board.projectID, "content": item.ContentNodeID}
		if err := c.graphql(ctx, "projects.add_item", addItemMutation, vars, &resp); err != nil {
			return "", fmt.Errorf("add project item: %w", err)
		}
		return resp.AddProjectV2ItemByID.Item.ID, nil
	}

	var resp struct {
		AddProjectV2DraftIssue struct {
			ProjectItem struct {
				ID string `json:"id"`
			} `json:"projectItem"`
		} `json:"addProjectV2DraftIssue"`
	}
	vars := map[string]any{"project": board.projectID, "title": item.Title, "body": item.Body}
	if err := c.graphql(ctx, "projects.add_draft", addDraftMutation, vars, &resp); err != nil {
		return "", fmt.Errorf("add draft item: %w", err)
	}
	return resp.AddProjectV2DraftIssue.ProjectItem.ID, nil
}

const updateFieldTextMutation = `
mutation($project: ID!, $item: ID!, $field: ID!, $text: String!) {
  updateProjectV2ItemFieldValue(input: {projectId: $project, itemId: $item, fieldId: $field, value: {text: $text}}) {
    projectV2Item { id }
  }
}`

const updateFieldOptionMutation = `
mutation($project: ID!, $item: ID!, $field: ID!, $option: String!) {
  updateProjectV2ItemFieldValue(input: {projectId: $project, itemId: $item, fieldId: $field, value: {singleSelectOptionId: $option}}) {
    projectV2Item { id }
  }
}`

// UpdateProjectItemField sets a single field on a board item. For
// single-select fields the value is matched against option names
// case-insensitively.
func (c *GitHubClient) UpdateProjectItemField(ctx context.Context, itemID, field, value string) error {
	board, err := c.resolveBoard(ctx)
	if err != nil {
		return err
	}

	key := strings.ToLower(field)
	fieldID, ok := board.fields[key]
	if !ok {
		return fmt.Errorf("project field %q: %w", field, ErrNotFound)
	}

	vars := map[string]any{"project": board.projectID, "item": itemID, "field": fieldID}
	mutation := updateFieldTextMutation
	if opts, single := board.fieldOptions[key]; single {
		optionID, ok := opts[strings.ToLower(value)]
		if !ok {
			return fmt.Errorf("option %q of field %q: %w", value, field, ErrNotFound)
		}
		mutation = updateFieldOptionMutation
		vars["option"] = optionID
	} else {
		vars["text"] = value
	}

	if err := c.graphql(ctx, "projects.update_field", mutation, vars, nil); err != nil {
		return fmt.Errorf("update field %q on item %s: %w", field, itemID, err)
	}
	return nil
}

const deleteItemMutation = `
mutation($project: ID!, $item: ID!) {
  deleteProjectV2Item(input: {projectId: $project, itemId: $item}) {
    deletedItemId
  }
}`

// DeleteProjectItem removes an item from the board without touching
// the backing issue.
func (c *GitHubClient) DeleteProjectItem(ctx context.Context, itemID string) error {
	board, err := c.resolveBoard(ctx)
	if err != nil {
		return err
	}
	vars := map[string]any{"project": board.projectID, "item": itemID}
	if err := c.graphql(ctx, "projects.delete_item", deleteItemMutation, vars, nil); err != nil {
		return fmt.Errorf("delete project item %s: %w", itemID, err)
	}
	return nil
}
