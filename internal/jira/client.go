// Package jira provides a Jira REST API client for issues, comments and
// attachments.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const apiVersion = "2"

// Author identifies the author of a comment.
type Author struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Comment is one issue comment.
type Comment struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Author Author `json:"author"`
}

// Attachment is the identity of a file stored on an issue.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// Project is a Jira project summary.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Priority is an issue priority.
type Priority struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IssueType is one creatable issue type of a project.
type IssueType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// User is a Jira user as returned by user search.
type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// FieldSchema describes one field of an issue create screen.
type FieldSchema struct {
	Required        bool   `json:"required"`
	Name            string `json:"name"`
	FieldID         string `json:"fieldId"`
	HasDefaultValue bool   `json:"hasDefaultValue"`
	AutoCompleteURL string `json:"autoCompleteUrl"`
}

// FieldRef addresses one field of a project's issue type create screen.
// It replaces the delimited action-id strings the UI layer used to carry.
type FieldRef struct {
	Project   string
	Issuetype string
	FieldID   string
}

// IssueSummary is a search hit: key plus summary.
type IssueSummary struct {
	Key     string
	Summary string
}

// IssueFields is the typed field set for creating an issue.
type IssueFields struct {
	ProjectKey  string
	IssuetypeID string
	Summary     string
	Description string
}

// CreatedIssue is the result of a successful issue creation. Warnings carry
// any partial-failure messages Jira attached to an otherwise created issue.
type CreatedIssue struct {
	ID       string
	Key      string
	Warnings []string
}

// APIError is a Jira REST failure with the service's error messages.
type APIError struct {
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API error (%d): %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

// Client is a Jira REST API client.
type Client struct {
	baseURL    string
	api        string
	user       string
	password   string
	httpClient *http.Client
}

// New creates a Jira client with basic auth credentials.
func New(baseURL, user, password string) *Client {
	baseURL = strings.Trim(baseURL, "/ ")
	return &Client{
		baseURL:    baseURL,
		api:        baseURL + "/rest/api/" + apiVersion,
		user:       user,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the Jira instance base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// User returns the authenticated Jira user name. Comments this user authored
// are the engine's own.
func (c *Client) User() string { return c.user }

// doRequest performs an authenticated request against the REST API.
func (c *Client) doRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.api+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("X-Atlassian-Token", "no-check")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// apiError drains the response body into an *APIError, collecting Jira's
// errorMessages and field errors in a stable order.
func apiError(resp *http.Response) error {
	var payload struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &payload)

	messages := payload.ErrorMessages
	fields := make([]string, 0, len(payload.Errors))
	for field := range payload.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		messages = append(messages, field+": "+payload.Errors[field])
	}
	if len(messages) == 0 {
		messages = []string{resp.Status}
	}
	return &APIError{StatusCode: resp.StatusCode, Messages: messages}
}

// getJSON performs a GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// writeJSON performs a mutating JSON request and discards any success body.
func (c *Client) writeJSON(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := c.doRequest(ctx, method, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp)
	}
	return nil
}

// GetIssueComments fetches all comments of an issue.
func (c *Client) GetIssueComments(ctx context.Context, issueKey string) ([]Comment, error) {
	var out struct {
		Fields struct {
			Comment struct {
				Comments []Comment `json:"comments"`
			} `json:"comment"`
		} `json:"fields"`
	}
	if err := c.getJSON(ctx, "/issue/"+issueKey+"?fields=comment", &out); err != nil {
		return nil, err
	}
	return out.Fields.Comment.Comments, nil
}

// AddComment creates a new comment on an issue.
func (c *Client) AddComment(ctx context.Context, issueKey, body string) error {
	return c.writeJSON(ctx, http.MethodPost, "/issue/"+issueKey+"/comment", map[string]string{"body": body})
}

// EditComment replaces the body of an existing comment.
func (c *Client) EditComment(ctx context.Context, issueKey, commentID, body string) error {
	return c.writeJSON(ctx, http.MethodPut, "/issue/"+issueKey+"/comment/"+commentID, map[string]string{"body": body})
}

// DeleteComment removes a comment from an issue.
func (c *Client) DeleteComment(ctx context.Context, issueKey, commentID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/issue/"+issueKey+"/comment/"+commentID, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp)
	}
	return nil
}

// GetIssueAttachments fetches the attachment identities stored on an issue.
func (c *Client) GetIssueAttachments(ctx context.Context, issueKey string) ([]Attachment, error) {
	var out struct {
		Fields struct {
			Attachment []Attachment `json:"attachment"`
		} `json:"fields"`
	}
	if err := c.getJSON(ctx, "/issue/"+issueKey+"?fields=attachment", &out); err != nil {
		return nil, err
	}
	return out.Fields.Attachment, nil
}

// UploadAttachment stores a file on an issue under the given filename.
func (c *Client) UploadAttachment(ctx context.Context, issueKey, filename string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/issue/"+issueKey+"/attachments", w.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp)
	}
	return nil
}

// CreateIssue creates a new issue from the typed field set. Issues created
// through the sync bridge are labeled for traceability.
func (c *Client) CreateIssue(ctx context.Context, fields IssueFields) (CreatedIssue, error) {
	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": fields.ProjectKey},
			"issuetype":   map[string]string{"id": fields.IssuetypeID},
			"summary":     fields.Summary,
			"description": fields.Description,
			"labels":      []string{"slack-driven-development"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return CreatedIssue{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/issue", "application/json", bytes.NewReader(body))
	if err != nil {
		return CreatedIssue{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return CreatedIssue{}, apiError(resp)
	}

	var out struct {
		ID            string   `json:"id"`
		Key           string   `json:"key"`
		ErrorMessages []string `json:"errorMessages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CreatedIssue{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Key == "" {
		return CreatedIssue{}, &APIError{StatusCode: resp.StatusCode, Messages: append([]string{"issue was not created"}, out.ErrorMessages...)}
	}
	return CreatedIssue{ID: out.ID, Key: out.Key, Warnings: out.ErrorMessages}, nil
}

// GetProjects lists all visible projects.
func (c *Client) GetProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.getJSON(ctx, "/project", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPriorities lists the configured issue priorities.
func (c *Client) GetPriorities(ctx context.Context) ([]Priority, error) {
	var out []Priority
	if err := c.getJSON(ctx, "/priority", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetIssuetypes lists the creatable issue types of a project.
func (c *Client) GetIssuetypes(ctx context.Context, projectKey string) ([]IssueType, error) {
	var out struct {
		Values []IssueType `json:"values"`
	}
	if err := c.getJSON(ctx, "/issue/createmeta/"+projectKey+"/issuetypes", &out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

// GetCreateMeta fetches the create screen fields of a project's issue type.
func (c *Client) GetCreateMeta(ctx context.Context, projectKey, issuetypeID string) ([]FieldSchema, error) {
	var out struct {
		Values []FieldSchema `json:"values"`
	}
	if err := c.getJSON(ctx, "/issue/createmeta/"+projectKey+"/issuetypes/"+issuetypeID, &out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

// FieldMeta resolves a single field of a create screen from its typed
// reference.
func (c *Client) FieldMeta(ctx context.Context, ref FieldRef) (*FieldSchema, error) {
	fields, err := c.GetCreateMeta(ctx, ref.Project, ref.Issuetype)
	if err != nil {
		return nil, err
	}
	for i := range fields {
		if fields[i].FieldID == ref.FieldID {
			return &fields[i], nil
		}
	}
	return nil, fmt.Errorf("field %q not found on %s/%s create screen", ref.FieldID, ref.Project, ref.Issuetype)
}

// SearchByJQL runs a JQL query and returns matching issue keys with their
// summaries.
func (c *Client) SearchByJQL(ctx context.Context, jql string, limit int) ([]IssueSummary, error) {
	query := url.Values{}
	query.Set("jql", jql)
	query.Set("fields", "summary")
	query.Set("maxResults", fmt.Sprint(limit))

	var out struct {
		Issues []struct {
			Key    string `json:"key"`
			Fields struct {
				Summary string `json:"summary"`
			} `json:"fields"`
		} `json:"issues"`
	}
	if err := c.getJSON(ctx, "/search?"+query.Encode(), &out); err != nil {
		return nil, err
	}

	issues := make([]IssueSummary, len(out.Issues))
	for i, issue := range out.Issues {
		issues[i] = IssueSummary{Key: issue.Key, Summary: issue.Fields.Summary}
	}
	return issues, nil
}

// FindUser searches Jira users by name fragment.
func (c *Client) FindUser(ctx context.Context, username string) ([]User, error) {
	query := url.Values{}
	query.Set("username", username)
	query.Set("includeActive", "true")
	query.Set("includeInactive", "false")
	query.Set("maxResults", "10")

	var out []User
	if err := c.getJSON(ctx, "/user/search?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddWatcher subscribes a user to an issue.
func (c *Client) AddWatcher(ctx context.Context, issueKey, userID string) error {
	return c.writeJSON(ctx, http.MethodPost, "/issue/"+issueKey+"/watchers", userID)
}
