package gh

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/governify/zh2gh/internal/auth"
	"github.com/governify/zh2gh/internal/domain"
	"github.com/governify/zh2gh/internal/logging"
)

// gqlCall is one request received by the fake server.
type gqlCall struct {
	Query     string
	Variables map[string]interface{}
	Auth      string
}

// gqlReply is what the fake server answers.
type gqlReply struct {
	Status int
	Data   interface{}
	Errors []GraphQLError
}

// fakeGitHub is a GraphQL endpoint whose answers come from a routing func.
type fakeGitHub struct {
	mu    sync.Mutex
	calls []gqlCall
	route func(call gqlCall) gqlReply
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	call := gqlCall{Query: body.Query, Variables: body.Variables, Auth: r.Header.Get("Authorization")}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	reply := f.route(call)
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	out := map[string]interface{}{"data": reply.Data}
	if len(reply.Errors) > 0 {
		out["errors"] = reply.Errors
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (f *fakeGitHub) callsMatching(fragment string) []gqlCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gqlCall
	for _, c := range f.calls {
		if strings.Contains(c.Query, fragment) {
			out = append(out, c)
		}
	}
	return out
}

func newTestClient(t *testing.T, fake *fakeGitHub, keys ...string) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	if len(keys) == 0 {
		keys = []string{"test_key"}
	}
	pool, err := auth.NewKeyPool(keys)
	require.NoError(t, err)

	client, err := New(Options{
		Endpoint: server.URL,
		Keys:     pool,
		PageSize: 2,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	return client
}

func page(hasNext bool, cursor string) map[string]interface{} {
	return map[string]interface{}{"hasNextPage": hasNext, "endCursor": cursor}
}

func statusFieldJSON(id string, names ...string) map[string]interface{} {
	options := make([]map[string]interface{}, 0, len(names))
	for _, n := range names {
		options = append(options, map[string]interface{}{"id": id + "_" + n, "name": n})
	}
	return map[string]interface{}{
		"__typename": "ProjectV2SingleSelectField",
		"id":         id,
		"name":       "Status",
		"options":    options,
	}
}

func itemJSON(id, contentID, title, status string) map[string]interface{} {
	values := []map[string]interface{}{
		{"__typename": "ProjectV2ItemFieldTextValue", "text": title},
		{"__typename": "ProjectV2ItemFieldDateValue"},
	}
	if status != "" {
		values = append(values, map[string]interface{}{
			"__typename": "ProjectV2ItemFieldSingleSelectValue", "name": status, "optionId": "opt_" + status,
		})
	}
	return map[string]interface{}{
		"id":          id,
		"content":     map[string]interface{}{"__typename": "Issue", "id": contentID},
		"fieldValues": map[string]interface{}{"nodes": values},
	}
}

func snapshotRoute(t *testing.T) func(call gqlCall) gqlReply {
	return func(call gqlCall) gqlReply {
		q := call.Query
		switch {
		case strings.Contains(q, "owner {"):
			return gqlReply{Data: map[string]interface{}{
				"repository": map[string]interface{}{
					"id": "R_1", "name": "widgets",
					"owner": map[string]interface{}{"id": "O_1", "login": "acme"},
					"issue": map[string]interface{}{"id": "I_42", "number": 42, "title": "Fix bug"},
				},
			}}
		case strings.Contains(q, "issue(number: $number)") && strings.Contains(q, "projectsV2"):
			return gqlReply{Data: map[string]interface{}{
				"repository": map[string]interface{}{"issue": map[string]interface{}{
					"projectsV2": map[string]interface{}{
						"pageInfo": page(false, ""),
						"nodes":    []map[string]interface{}{{"id": "PVT_A", "number": 1, "title": "Board A"}},
					},
				}},
			}}
		case strings.Contains(q, "projectsV2(first: $first, after: $after)"):
			if call.Variables["after"] == nil {
				return gqlReply{Data: map[string]interface{}{
					"repository": map[string]interface{}{"projectsV2": map[string]interface{}{
						"pageInfo": page(true, "c1"),
						"nodes":    []map[string]interface{}{{"id": "PVT_A", "number": 1, "title": "Board A"}},
					}},
				}}
			}
			return gqlReply{Data: map[string]interface{}{
				"repository": map[string]interface{}{"projectsV2": map[string]interface{}{
					"pageInfo": page(false, ""),
					"nodes":    []map[string]interface{}{{"id": "PVT_B", "number": 2, "title": "Board B"}},
				}},
			}}
		case strings.Contains(q, "fields(first: $first, after: $after)"):
			if call.Variables["projectId"] == "PVT_A" {
				return gqlReply{Data: map[string]interface{}{"node": map[string]interface{}{"fields": map[string]interface{}{
					"pageInfo": page(false, ""),
					"nodes": []map[string]interface{}{
						{"__typename": "ProjectV2Field"},
						statusFieldJSON("F_A", "Todo", "In Progress", "In Review", "Done"),
					},
				}}}}
			}
			return gqlReply{Data: map[string]interface{}{"node": map[string]interface{}{"fields": map[string]interface{}{
				"pageInfo": page(false, ""),
				"nodes":    []map[string]interface{}{{"__typename": "ProjectV2Field"}},
			}}}}
		case strings.Contains(q, "items(first: $first, after: $after)"):
			if call.Variables["projectId"] == "PVT_A" && call.Variables["after"] == nil {
				return gqlReply{Data: map[string]interface{}{"node": map[string]interface{}{"items": map[string]interface{}{
					"pageInfo": page(true, "i1"),
					"nodes":    []map[string]interface{}{itemJSON("ITEM_1", "I_7", "Other", "Todo")},
				}}}}
			}
			if call.Variables["projectId"] == "PVT_A" {
				return gqlReply{Data: map[string]interface{}{"node": map[string]interface{}{"items": map[string]interface{}{
					"pageInfo": page(false, ""),
					"nodes":    []map[string]interface{}{itemJSON("ITEM_2", "I_42", "Fix bug", "")},
				}}}}
			}
			return gqlReply{Data: map[string]interface{}{"node": map[string]interface{}{"items": map[string]interface{}{
				"pageInfo": page(false, ""),
				"nodes":    []map[string]interface{}{},
			}}}}
		}
		t.Errorf("unexpected query: %s", q)
		return gqlReply{Status: http.StatusBadRequest}
	}
}

func TestFetchRepositorySnapshot(t *testing.T) {
	fake := &fakeGitHub{route: snapshotRoute(t)}
	client := newTestClient(t, fake)

	snap, err := client.FetchRepositorySnapshot(context.Background(), domain.IssueRef{Owner: "acme", Repo: "widgets", Number: 42})
	require.NoError(t, err)

	assert.Equal(t, "R_1", snap.ID)
	assert.Equal(t, "widgets", snap.Name)
	assert.Equal(t, "O_1", snap.OwnerID)
	assert.Equal(t, "acme", snap.Owner)
	assert.Equal(t, domain.Issue{ID: "I_42", Number: 42, Title: "Fix bug", LinkedProjects: snap.Issue.LinkedProjects}, snap.Issue)

	require.Len(t, snap.RepositoryProjects, 2, "both project pages are read")
	assert.Equal(t, []string{"PVT_A", "PVT_B"}, domain.ProjectIDs(snap.RepositoryProjects))
	require.Len(t, snap.Issue.LinkedProjects, 1)
	assert.Same(t, snap.RepositoryProjects[0], snap.Issue.LinkedProjects[0], "shared projects are loaded once")

	a := snap.RepositoryProjects[0]
	status, ok := a.StatusField()
	require.True(t, ok)
	assert.Equal(t, "F_A", status.FieldID)
	assert.Equal(t, []string{"Todo", "In Progress", "In Review", "Done"}, status.OptionNames())

	require.Len(t, a.Items, 2, "both item pages are read")
	assert.Equal(t, "I_42", a.Items[1].ContentID)
	assert.True(t, a.Items[1].HasText("Fix bug"))
	assert.Len(t, a.Items[0].FieldValues, 2, "unknown value kinds are skipped")

	_, ok = snap.RepositoryProjects[1].StatusField()
	assert.False(t, ok)

	assert.Len(t, fake.callsMatching("fields(first: $first, after: $after)"), 2, "PVT_A fields fetched once")
}

func TestFetchRepositorySnapshot_IssueNotFound(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{
			Data:   map[string]interface{}{"repository": map[string]interface{}{"id": "R_1", "issue": nil}},
			Errors: []GraphQLError{{Type: "NOT_FOUND", Message: "Could not resolve to an Issue with the number of 999."}},
		}
	}}
	client := newTestClient(t, fake)

	_, err := client.FetchRepositorySnapshot(context.Background(), domain.IssueRef{Owner: "acme", Repo: "widgets", Number: 999})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchRepositorySnapshot_NullIssueWithoutErrors(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{Data: map[string]interface{}{"repository": map[string]interface{}{"id": "R_1", "issue": nil}}}
	}}
	client := newTestClient(t, fake)

	_, err := client.FetchRepositorySnapshot(context.Background(), domain.IssueRef{Owner: "acme", Repo: "widgets", Number: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchRepositorySnapshot_StalledCursor(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{name: "empty cursor", cursor: ""},
		{name: "repeated cursor", cursor: "c1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeGitHub{}
			fake.route = func(call gqlCall) gqlReply {
				if strings.Contains(call.Query, "owner {") {
					return snapshotRoute(t)(call)
				}
				cursor := tt.cursor
				if call.Variables["after"] == nil {
					cursor = "c1"
				}
				return gqlReply{Data: map[string]interface{}{
					"repository": map[string]interface{}{
						"projectsV2": map[string]interface{}{"pageInfo": page(true, cursor), "nodes": []map[string]interface{}{}},
						"issue": map[string]interface{}{
							"projectsV2": map[string]interface{}{"pageInfo": page(true, cursor), "nodes": []map[string]interface{}{}},
						},
					},
				}}
			}
			client := newTestClient(t, fake)

			_, err := client.FetchRepositorySnapshot(context.Background(), domain.IssueRef{Owner: "acme", Repo: "widgets", Number: 42})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)
			assert.Contains(t, err.Error(), "pagination stalled")
			assert.LessOrEqual(t, len(fake.callsMatching("projectsV2(first: $first, after: $after)")), 4)
		})
	}
}

func TestMakeRequest_RotatesKeys(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{Data: map[string]interface{}{}}
	}}
	client := newTestClient(t, fake, "k1", "k2")

	for i := 0; i < 3; i++ {
		require.NoError(t, client.LinkProjectToRepository(context.Background(), "R_1", "PVT_1"))
	}

	calls := fake.callsMatching("linkProjectV2ToRepository")
	require.Len(t, calls, 3)
	assert.Equal(t, "Bearer k1", calls[0].Auth)
	assert.Equal(t, "Bearer k2", calls[1].Auth)
	assert.Equal(t, "Bearer k1", calls[2].Auth)
	assert.Equal(t, "R_1", calls[0].Variables["repositoryId"])
	assert.Equal(t, "PVT_1", calls[0].Variables["projectId"])
}

func TestMakeRequest_NonOKStatusIsTransportError(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{Status: http.StatusUnauthorized, Data: nil}
	}}
	client := newTestClient(t, fake)

	err := client.UpdateSingleSelectField(context.Background(), "PVT_1", "ITEM_1", "F_1", "O_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotContains(t, err.Error(), "test_key")
}

func TestMakeRequest_ConnectionRefused(t *testing.T) {
	pool, err := auth.NewKeyPool([]string{"k"})
	require.NoError(t, err)
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	client, err := New(Options{Endpoint: endpoint, Keys: pool, Logger: logging.Discard()})
	require.NoError(t, err)

	err = client.LinkProjectToRepository(context.Background(), "R", "P")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestUpdateSingleSelectField(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{Data: map[string]interface{}{
			"updateProjectV2ItemFieldValue": map[string]interface{}{"projectV2Item": map[string]interface{}{"id": "ITEM_1"}},
		}}
	}}
	client := newTestClient(t, fake)

	err := client.UpdateSingleSelectField(context.Background(), "PVT_1", "ITEM_1", "F_1", "O_DONE")
	require.NoError(t, err)

	calls := fake.callsMatching("updateProjectV2ItemFieldValue")
	require.Len(t, calls, 1)
	assert.Equal(t, "PVT_1", calls[0].Variables["projectId"])
	assert.Equal(t, "ITEM_1", calls[0].Variables["itemId"])
	assert.Equal(t, "F_1", calls[0].Variables["fieldId"])
	assert.Equal(t, map[string]interface{}{"singleSelectOptionId": "O_DONE"}, calls[0].Variables["value"])
}

func TestUpdateSingleSelectField_StructuredErrors(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{Errors: []GraphQLError{
			{Type: "NOT_FOUND", Message: "Could not resolve to a node with the global id of ''"},
			{Message: "Argument 'itemId' is invalid"},
		}}
	}}
	client := newTestClient(t, fake)

	err := client.UpdateSingleSelectField(context.Background(), "PVT_1", "", "F_1", "O_1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Len(t, apiErr.Errors, 2)
	assert.Equal(t, "NOT_FOUND", apiErr.Errors[0].Type)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "NOT_FOUND: Could not resolve")
}

func TestAPIError_IsOnlyNotFound(t *testing.T) {
	err := &APIError{Errors: []GraphQLError{{Type: "FORBIDDEN", Message: "nope"}}}
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "github graphql: FORBIDDEN: nope", err.Error())
}

func TestCopyTemplateProject(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{Data: map[string]interface{}{"copyProjectV2": map[string]interface{}{"projectV2": map[string]interface{}{
			"id": "PVT_NEW", "number": 9, "title": "widgets", "url": "https://github.com/orgs/acme/projects/9",
			"fields": map[string]interface{}{"nodes": []map[string]interface{}{
				statusFieldJSON("F_NEW", "Todo", "In Progress", "In Review", "Done"),
			}},
			"items": map[string]interface{}{"nodes": []map[string]interface{}{}},
		}}}}
	}}
	client := newTestClient(t, fake)

	project, err := client.CopyTemplateProject(context.Background(), "widgets", "O_1", "PVT_TEMPLATE")
	require.NoError(t, err)

	assert.Equal(t, "PVT_NEW", project.ID)
	assert.Equal(t, 9, project.Number)
	status, ok := project.StatusField()
	require.True(t, ok)
	assert.Equal(t, "F_NEW", status.FieldID)
	assert.Empty(t, project.Items)

	calls := fake.callsMatching("copyProjectV2")
	require.Len(t, calls, 1)
	assert.Equal(t, "PVT_TEMPLATE", calls[0].Variables["projectId"])
	assert.Equal(t, "O_1", calls[0].Variables["ownerId"])
	assert.Equal(t, "widgets", calls[0].Variables["title"])
}

func TestCopyTemplateProject_NoProject(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{Data: map[string]interface{}{"copyProjectV2": map[string]interface{}{"projectV2": nil}}}
	}}
	client := newTestClient(t, fake)

	_, err := client.CopyTemplateProject(context.Background(), "widgets", "O_1", "PVT_TEMPLATE")
	assert.Error(t, err)
}

func TestLinkIssueToProject(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{Data: map[string]interface{}{
			"addProjectV2ItemById": map[string]interface{}{"item": map[string]interface{}{"id": "ITEM_NEW"}},
		}}
	}}
	client := newTestClient(t, fake)

	itemID, err := client.LinkIssueToProject(context.Background(), "PVT_1", "I_42")
	require.NoError(t, err)
	assert.Equal(t, "ITEM_NEW", itemID)

	calls := fake.callsMatching("addProjectV2ItemById")
	require.Len(t, calls, 1)
	assert.Equal(t, "I_42", calls[0].Variables["contentId"])
}

func TestLinkProjectToRepository(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		return gqlReply{Data: map[string]interface{}{
			"linkProjectV2ToRepository": map[string]interface{}{"repository": map[string]interface{}{"id": "R_1"}},
		}}
	}}
	client := newTestClient(t, fake)

	require.NoError(t, client.LinkProjectToRepository(context.Background(), "R_1", "PVT_1"))

	calls := fake.callsMatching("linkProjectV2ToRepository")
	require.Len(t, calls, 1)
	assert.Equal(t, "R_1", calls[0].Variables["repositoryId"])
	assert.Equal(t, "PVT_1", calls[0].Variables["projectId"])
}

func TestIsEpicIssue(t *testing.T) {
	labels := func(names ...string) func(call gqlCall) gqlReply {
		return func(call gqlCall) gqlReply {
			nodes := make([]map[string]interface{}, 0, len(names))
			for _, n := range names {
				nodes = append(nodes, map[string]interface{}{"name": n})
			}
			return gqlReply{Data: map[string]interface{}{"repository": map[string]interface{}{
				"issue": map[string]interface{}{"labels": map[string]interface{}{"nodes": nodes}},
			}}}
		}
	}
	ref := domain.IssueRef{Owner: "acme", Repo: "widgets", Number: 42}

	t.Run("epic", func(t *testing.T) {
		client := newTestClient(t, &fakeGitHub{route: labels("bug", "Epic")})
		isEpic, err := client.IsEpicIssue(context.Background(), ref, "Epic")
		require.NoError(t, err)
		assert.True(t, isEpic)
	})

	t.Run("exact match only", func(t *testing.T) {
		client := newTestClient(t, &fakeGitHub{route: labels("epic", "Epic story")})
		isEpic, err := client.IsEpicIssue(context.Background(), ref, "Epic")
		require.NoError(t, err)
		assert.False(t, isEpic)
	})
}

func TestAddComment(t *testing.T) {
	fake := &fakeGitHub{route: func(call gqlCall) gqlReply {
		if strings.Contains(call.Query, "issueOrPullRequest") {
			return gqlReply{Data: map[string]interface{}{"repository": map[string]interface{}{
				"issueOrPullRequest": map[string]interface{}{"id": "I_42"},
			}}}
		}
		return gqlReply{Data: map[string]interface{}{"addComment": map[string]interface{}{}}}
	}}
	client := newTestClient(t, fake)

	err := client.AddComment(context.Background(), domain.IssueRef{Owner: "acme", Repo: "widgets", Number: 42}, "hello")
	require.NoError(t, err)

	calls := fake.callsMatching("addComment(")
	require.Len(t, calls, 1)
	assert.Equal(t, "I_42", calls[0].Variables["subjectId"])
	assert.Equal(t, "hello", calls[0].Variables["body"])
}

func TestNew_RequiresKeys(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
