package gh

import (
	"context"
	"fmt"

	"github.com/machinebox/graphql"

	"github.com/governify/zh2gh/internal/domain"
)

// pageInfo is the cursor state of a GraphQL connection.
type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// next returns the cursor of the following page, or "" on the last page.
// A page that claims more results without moving the cursor is an error.
func (p pageInfo) next(cursor string) (string, error) {
	if !p.HasNextPage {
		return "", nil
	}
	if p.EndCursor == "" || p.EndCursor == cursor {
		return "", fmt.Errorf("%w: pagination stalled after cursor %q", ErrTransport, cursor)
	}
	return p.EndCursor, nil
}

type projectNode struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

type fieldNode struct {
	Typename string `json:"__typename"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Options  []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"options"`
}

type itemNode struct {
	ID      string `json:"id"`
	Content *struct {
		Typename string `json:"__typename"`
		ID       string `json:"id"`
	} `json:"content"`
	FieldValues struct {
		Nodes []struct {
			Typename string `json:"__typename"`
			Text     string `json:"text"`
			Name     string `json:"name"`
			OptionID string `json:"optionId"`
		} `json:"nodes"`
	} `json:"fieldValues"`
}

// Shared selections. Field values of other kinds decode as empty objects and
// are skipped by their __typename.
const (
	fieldSelection = `
		__typename
		... on ProjectV2SingleSelectField {
			id
			name
			options {
				id
				name
			}
		}`

	itemSelection = `
		id
		content {
			__typename
			... on Issue {
				id
			}
			... on PullRequest {
				id
			}
		}
		fieldValues(first: 100) {
			nodes {
				__typename
				... on ProjectV2ItemFieldTextValue {
					text
				}
				... on ProjectV2ItemFieldSingleSelectValue {
					name
					optionId
				}
			}
		}`
)

// FetchRepositorySnapshot reads everything the reconciliation needs for one
// issue: the repository's projects, the issue's projects, and each project's
// status schema and items. All connections are paginated to completion.
//
// A project that appears both in the repository and on the issue is fetched
// once and shared, so in-place changes are visible from both lists.
func (c *Client) FetchRepositorySnapshot(ctx context.Context, ref domain.IssueRef) (*domain.RepositorySnapshot, error) {
	snap, err := c.getRepositoryHeader(ctx, ref)
	if err != nil {
		return nil, err
	}

	repoProjects, err := c.listRepositoryProjects(ctx, ref)
	if err != nil {
		return nil, err
	}
	issueProjects, err := c.listIssueProjects(ctx, ref)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Project)
	load := func(nodes []projectNode) ([]*domain.Project, error) {
		out := make([]*domain.Project, 0, len(nodes))
		for _, node := range nodes {
			if p, ok := byID[node.ID]; ok {
				out = append(out, p)
				continue
			}
			p, err := c.loadProject(ctx, node)
			if err != nil {
				return nil, err
			}
			byID[node.ID] = p
			out = append(out, p)
		}
		return out, nil
	}

	if snap.RepositoryProjects, err = load(repoProjects); err != nil {
		return nil, err
	}
	if snap.Issue.LinkedProjects, err = load(issueProjects); err != nil {
		return nil, err
	}

	return snap, nil
}

// getRepositoryHeader fetches repository and issue identity.
func (c *Client) getRepositoryHeader(ctx context.Context, ref domain.IssueRef) (*domain.RepositorySnapshot, error) {
	req := graphql.NewRequest(`
		query($owner: String!, $repo: String!, $number: Int!) {
			repository(owner: $owner, name: $repo) {
				id
				name
				owner {
					id
					login
				}
				issue(number: $number) {
					id
					number
					title
				}
			}
		}
	`)
	req.Var("owner", ref.Owner)
	req.Var("repo", ref.Repo)
	req.Var("number", ref.Number)

	var resp struct {
		Repository *struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Owner struct {
				ID    string `json:"id"`
				Login string `json:"login"`
			} `json:"owner"`
			Issue *struct {
				ID     string `json:"id"`
				Number int    `json:"number"`
				Title  string `json:"title"`
			} `json:"issue"`
		} `json:"repository"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get repository %s: %w", ref, err)
	}
	if resp.Repository == nil {
		return nil, fmt.Errorf("repository %s/%s: %w", ref.Owner, ref.Repo, ErrNotFound)
	}
	if resp.Repository.Issue == nil {
		return nil, fmt.Errorf("issue %s: %w", ref, ErrNotFound)
	}

	return &domain.RepositorySnapshot{
		ID:      resp.Repository.ID,
		Name:    resp.Repository.Name,
		Owner:   resp.Repository.Owner.Login,
		OwnerID: resp.Repository.Owner.ID,
		Issue: domain.Issue{
			ID:     resp.Repository.Issue.ID,
			Number: resp.Repository.Issue.Number,
			Title:  resp.Repository.Issue.Title,
		},
	}, nil
}

// listRepositoryProjects pages through repository.projectsV2.
func (c *Client) listRepositoryProjects(ctx context.Context, ref domain.IssueRef) ([]projectNode, error) {
	var all []projectNode
	cursor := ""
	for {
		req := graphql.NewRequest(`
			query($owner: String!, $repo: String!, $first: Int!, $after: String) {
				repository(owner: $owner, name: $repo) {
					projectsV2(first: $first, after: $after) {
						pageInfo {
							hasNextPage
							endCursor
						}
						nodes {
							id
							number
							title
							url
						}
					}
				}
			}
		`)
		req.Var("owner", ref.Owner)
		req.Var("repo", ref.Repo)
		req.Var("first", c.pageSize)
		setCursor(req, cursor)

		var resp struct {
			Repository struct {
				ProjectsV2 struct {
					PageInfo pageInfo      `json:"pageInfo"`
					Nodes    []projectNode `json:"nodes"`
				} `json:"projectsV2"`
			} `json:"repository"`
		}

		if err := c.makeRequest(ctx, req, &resp); err != nil {
			return nil, fmt.Errorf("failed to list repository projects: %w", err)
		}

		all = append(all, resp.Repository.ProjectsV2.Nodes...)
		next, err := resp.Repository.ProjectsV2.PageInfo.next(cursor)
		if err != nil {
			return nil, err
		}
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// listIssueProjects pages through issue.projectsV2.
func (c *Client) listIssueProjects(ctx context.Context, ref domain.IssueRef) ([]projectNode, error) {
	var all []projectNode
	cursor := ""
	for {
		req := graphql.NewRequest(`
			query($owner: String!, $repo: String!, $number: Int!, $first: Int!, $after: String) {
				repository(owner: $owner, name: $repo) {
					issue(number: $number) {
						projectsV2(first: $first, after: $after) {
							pageInfo {
								hasNextPage
								endCursor
							}
							nodes {
								id
								number
								title
								url
							}
						}
					}
				}
			}
		`)
		req.Var("owner", ref.Owner)
		req.Var("repo", ref.Repo)
		req.Var("number", ref.Number)
		req.Var("first", c.pageSize)
		setCursor(req, cursor)

		var resp struct {
			Repository struct {
				Issue struct {
					ProjectsV2 struct {
						PageInfo pageInfo      `json:"pageInfo"`
						Nodes    []projectNode `json:"nodes"`
					} `json:"projectsV2"`
				} `json:"issue"`
			} `json:"repository"`
		}

		if err := c.makeRequest(ctx, req, &resp); err != nil {
			return nil, fmt.Errorf("failed to list issue projects: %w", err)
		}

		all = append(all, resp.Repository.Issue.ProjectsV2.Nodes...)
		next, err := resp.Repository.Issue.ProjectsV2.PageInfo.next(cursor)
		if err != nil {
			return nil, err
		}
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// loadProject fetches the schema and items of one project.
func (c *Client) loadProject(ctx context.Context, node projectNode) (*domain.Project, error) {
	fields, err := c.getProjectFields(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	items, err := c.getProjectItems(ctx, node.ID)
	if err != nil {
		return nil, err
	}

	return &domain.Project{
		ID:     node.ID,
		Number: node.Number,
		Title:  node.Title,
		URL:    node.URL,
		Status: statusSchema(fields),
		Items:  items,
	}, nil
}

// getProjectFields pages through the single-select fields of a project.
func (c *Client) getProjectFields(ctx context.Context, projectID string) ([]fieldNode, error) {
	var all []fieldNode
	cursor := ""
	for {
		req := graphql.NewRequest(`
			query($projectId: ID!, $first: Int!, $after: String) {
				node(id: $projectId) {
					... on ProjectV2 {
						fields(first: $first, after: $after) {
							pageInfo {
								hasNextPage
								endCursor
							}
							nodes {` + fieldSelection + `
							}
						}
					}
				}
			}
		`)
		req.Var("projectId", projectID)
		req.Var("first", c.pageSize)
		setCursor(req, cursor)

		var resp struct {
			Node struct {
				Fields struct {
					PageInfo pageInfo    `json:"pageInfo"`
					Nodes    []fieldNode `json:"nodes"`
				} `json:"fields"`
			} `json:"node"`
		}

		if err := c.makeRequest(ctx, req, &resp); err != nil {
			return nil, fmt.Errorf("failed to get fields of project %s: %w", projectID, err)
		}

		all = append(all, resp.Node.Fields.Nodes...)
		next, err := resp.Node.Fields.PageInfo.next(cursor)
		if err != nil {
			return nil, err
		}
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// getProjectItems pages through the items of a project.
func (c *Client) getProjectItems(ctx context.Context, projectID string) ([]*domain.Item, error) {
	var all []*domain.Item
	cursor := ""
	for {
		req := graphql.NewRequest(`
			query($projectId: ID!, $first: Int!, $after: String) {
				node(id: $projectId) {
					... on ProjectV2 {
						items(first: $first, after: $after) {
							pageInfo {
								hasNextPage
								endCursor
							}
							nodes {` + itemSelection + `
							}
						}
					}
				}
			}
		`)
		req.Var("projectId", projectID)
		req.Var("first", c.pageSize)
		setCursor(req, cursor)

		var resp struct {
			Node struct {
				Items struct {
					PageInfo pageInfo   `json:"pageInfo"`
					Nodes    []itemNode `json:"nodes"`
				} `json:"items"`
			} `json:"node"`
		}

		if err := c.makeRequest(ctx, req, &resp); err != nil {
			return nil, fmt.Errorf("failed to get items of project %s: %w", projectID, err)
		}

		for _, node := range resp.Node.Items.Nodes {
			all = append(all, toItem(node))
		}
		next, err := resp.Node.Items.PageInfo.next(cursor)
		if err != nil {
			return nil, err
		}
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// IsEpicIssue reports whether the issue carries a label named exactly label.
func (c *Client) IsEpicIssue(ctx context.Context, ref domain.IssueRef, label string) (bool, error) {
	req := graphql.NewRequest(`
		query($owner: String!, $repo: String!, $number: Int!) {
			repository(owner: $owner, name: $repo) {
				issue(number: $number) {
					labels(first: 100) {
						nodes {
							name
						}
					}
				}
			}
		}
	`)
	req.Var("owner", ref.Owner)
	req.Var("repo", ref.Repo)
	req.Var("number", ref.Number)

	var resp struct {
		Repository *struct {
			Issue *struct {
				Labels struct {
					Nodes []struct {
						Name string `json:"name"`
					} `json:"nodes"`
				} `json:"labels"`
			} `json:"issue"`
		} `json:"repository"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return false, fmt.Errorf("failed to get labels of %s: %w", ref, err)
	}
	if resp.Repository == nil || resp.Repository.Issue == nil {
		return false, fmt.Errorf("issue %s: %w", ref, ErrNotFound)
	}

	for _, l := range resp.Repository.Issue.Labels.Nodes {
		if l.Name == label {
			return true, nil
		}
	}
	return false, nil
}

func setCursor(req *graphql.Request, cursor string) {
	if cursor != "" {
		req.Var("after", cursor)
	} else {
		req.Var("after", nil)
	}
}

// statusSchema picks the single-select field named "Status" out of fields.
func statusSchema(fields []fieldNode) domain.StatusSchema {
	for _, f := range fields {
		if f.Typename != "ProjectV2SingleSelectField" || f.Name != domain.StatusFieldName {
			continue
		}
		options := make([]domain.Option, 0, len(f.Options))
		for _, opt := range f.Options {
			options = append(options, domain.Option{ID: opt.ID, Name: opt.Name})
		}
		return domain.StatusPresent{FieldID: f.ID, Options: options}
	}
	return domain.StatusAbsent{}
}

func toItem(node itemNode) *domain.Item {
	item := &domain.Item{ID: node.ID}
	if node.Content != nil {
		switch node.Content.Typename {
		case "Issue", "PullRequest":
			item.ContentID = node.Content.ID
		}
	}

	for _, v := range node.FieldValues.Nodes {
		switch v.Typename {
		case "ProjectV2ItemFieldTextValue":
			item.FieldValues = append(item.FieldValues, domain.FieldValue{
				Kind: domain.FieldValueText,
				Text: v.Text,
			})
		case "ProjectV2ItemFieldSingleSelectValue":
			item.FieldValues = append(item.FieldValues, domain.FieldValue{
				Kind:     domain.FieldValueSingleSelect,
				Name:     v.Name,
				OptionID: v.OptionID,
			})
		}
	}
	return item
}
