package gh

import (
	"context"
	"fmt"

	"github.com/machinebox/graphql"

	"github.com/governify/zh2gh/internal/domain"
)

// UpdateSingleSelectField sets a project item's SINGLE_SELECT field to optionID.
// GitHub's structured errors come back as *APIError.
func (c *Client) UpdateSingleSelectField(ctx context.Context, projectID, itemID, fieldID, optionID string) error {
	req := graphql.NewRequest(`
		mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $value: ProjectV2FieldValue!) {
			updateProjectV2ItemFieldValue(
				input: {
					projectId: $projectId
					itemId: $itemId
					fieldId: $fieldId
					value: $value
				}
			) {
				projectV2Item {
					id
				}
			}
		}
	`)

	req.Var("projectId", projectID)
	req.Var("itemId", itemID)
	req.Var("fieldId", fieldID)
	req.Var("value", map[string]interface{}{
		"singleSelectOptionId": optionID,
	})

	var resp struct {
		UpdateProjectV2ItemFieldValue struct {
			ProjectV2Item struct {
				ID string `json:"id"`
			} `json:"projectV2Item"`
		} `json:"updateProjectV2ItemFieldValue"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return fmt.Errorf("failed to update item field: %w", err)
	}

	return nil
}

// CopyTemplateProject copies the template project into the owner's namespace,
// titled after the repository. The returned project carries its status schema
// and items, so it can be validated and updated without a re-fetch.
func (c *Client) CopyTemplateProject(ctx context.Context, repositoryName, ownerID, templateProjectID string) (*domain.Project, error) {
	req := graphql.NewRequest(`
		mutation($projectId: ID!, $ownerId: ID!, $title: String!, $first: Int!) {
			copyProjectV2(input: {projectId: $projectId, ownerId: $ownerId, title: $title}) {
				projectV2 {
					id
					number
					title
					url
					fields(first: $first) {
						nodes {` + fieldSelection + `
						}
					}
					items(first: $first) {
						nodes {` + itemSelection + `
						}
					}
				}
			}
		}
	`)

	req.Var("projectId", templateProjectID)
	req.Var("ownerId", ownerID)
	req.Var("title", repositoryName)
	req.Var("first", c.pageSize)

	var resp struct {
		CopyProjectV2 struct {
			ProjectV2 *struct {
				projectNode
				Fields struct {
					Nodes []fieldNode `json:"nodes"`
				} `json:"fields"`
				Items struct {
					Nodes []itemNode `json:"nodes"`
				} `json:"items"`
			} `json:"projectV2"`
		} `json:"copyProjectV2"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to copy template project %s: %w", templateProjectID, err)
	}

	copied := resp.CopyProjectV2.ProjectV2
	if copied == nil || copied.ID == "" {
		return nil, fmt.Errorf("copy of template project %s returned no project", templateProjectID)
	}

	project := &domain.Project{
		ID:     copied.ID,
		Number: copied.Number,
		Title:  copied.Title,
		URL:    copied.URL,
		Status: statusSchema(copied.Fields.Nodes),
	}
	for _, node := range copied.Items.Nodes {
		project.Items = append(project.Items, toItem(node))
	}

	return project, nil
}

// LinkProjectToRepository links a project to a repository so it shows up in
// the repository's project list.
func (c *Client) LinkProjectToRepository(ctx context.Context, repositoryID, projectID string) error {
	req := graphql.NewRequest(`
		mutation($repositoryId: ID!, $projectId: ID!) {
			linkProjectV2ToRepository(input: {repositoryId: $repositoryId, projectId: $projectId}) {
				repository {
					id
				}
			}
		}
	`)

	req.Var("repositoryId", repositoryID)
	req.Var("projectId", projectID)

	var resp struct {
		LinkProjectV2ToRepository struct {
			Repository struct {
				ID string `json:"id"`
			} `json:"repository"`
		} `json:"linkProjectV2ToRepository"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return fmt.Errorf("failed to link project %s to repository: %w", projectID, err)
	}

	return nil
}

// LinkIssueToProject adds the issue (or pull request) as an item of the
// project and returns the new item ID.
func (c *Client) LinkIssueToProject(ctx context.Context, projectID, contentID string) (string, error) {
	req := graphql.NewRequest(`
		mutation($projectId: ID!, $contentId: ID!) {
			addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
				item {
					id
				}
			}
		}
	`)

	req.Var("projectId", projectID)
	req.Var("contentId", contentID)

	var resp struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("failed to add issue to project %s: %w", projectID, err)
	}
	if resp.AddProjectV2ItemByID.Item.ID == "" {
		return "", fmt.Errorf("adding issue to project %s returned no item", projectID)
	}

	return resp.AddProjectV2ItemByID.Item.ID, nil
}

// AddComment adds a comment to an issue or pull request.
// Uses the addComment mutation which requires the issue/PR node ID.
func (c *Client) AddComment(ctx context.Context, ref domain.IssueRef, body string) error {
	nodeID, err := c.getIssueOrPRNodeID(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to get issue node ID: %w", err)
	}

	req := graphql.NewRequest(`
		mutation($subjectId: ID!, $body: String!) {
			addComment(input: {subjectId: $subjectId, body: $body}) {
				commentEdge {
					node {
						id
					}
				}
			}
		}
	`)

	req.Var("subjectId", nodeID)
	req.Var("body", body)

	var resp struct {
		AddComment struct {
			CommentEdge struct {
				Node struct {
					ID string `json:"id"`
				} `json:"node"`
			} `json:"commentEdge"`
		} `json:"addComment"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	return nil
}

// getIssueOrPRNodeID retrieves the GraphQL node ID for an issue or PR.
func (c *Client) getIssueOrPRNodeID(ctx context.Context, ref domain.IssueRef) (string, error) {
	req := graphql.NewRequest(`
		query($owner: String!, $repo: String!, $number: Int!) {
			repository(owner: $owner, name: $repo) {
				issueOrPullRequest(number: $number) {
					... on Issue {
						id
					}
					... on PullRequest {
						id
					}
				}
			}
		}
	`)

	req.Var("owner", ref.Owner)
	req.Var("repo", ref.Repo)
	req.Var("number", ref.Number)

	var resp struct {
		Repository struct {
			IssueOrPullRequest struct {
				ID string `json:"id"`
			} `json:"issueOrPullRequest"`
		} `json:"repository"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return "", err
	}

	if resp.Repository.IssueOrPullRequest.ID == "" {
		return "", fmt.Errorf("issue or PR %s: %w", ref, ErrNotFound)
	}

	return resp.Repository.IssueOrPullRequest.ID, nil
}
