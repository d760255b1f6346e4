package jira

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockServer provides a fake Jira REST API for testing.
type MockServer struct {
	*httptest.Server
	mu            sync.RWMutex
	comments      map[string][]Comment    // issue key -> comments in creation order
	attachments   map[string][]Attachment // issue key -> attachments
	watchers      map[string][]string     // issue key -> watching users
	projects      []Project
	priorities    []Priority
	issuetypes    map[string][]IssueType   // project key -> issue types
	createFields  map[string][]FieldSchema // "project/issuetype" -> fields
	users         []User
	nextCommentID int
	nextIssueNum  int
	authorName    string
}

// NewMockServer creates a mock Jira REST API server. Comments created
// through the API are attributed to authorName.
func NewMockServer(authorName string) *MockServer {
	m := &MockServer{
		comments:      make(map[string][]Comment),
		attachments:   make(map[string][]Attachment),
		watchers:      make(map[string][]string),
		issuetypes:    make(map[string][]IssueType),
		createFields:  make(map[string][]FieldSchema),
		nextCommentID: 1,
		nextIssueNum:  1,
		authorName:    authorName,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/issue", m.handleCreateIssue)
	mux.HandleFunc("/rest/api/2/issue/createmeta/", m.handleCreateMeta)
	mux.HandleFunc("/rest/api/2/issue/", m.handleIssue)
	mux.HandleFunc("/rest/api/2/project", m.handleProjects)
	mux.HandleFunc("/rest/api/2/priority", m.handlePriorities)
	mux.HandleFunc("/rest/api/2/search", m.handleSearch)
	mux.HandleFunc("/rest/api/2/user/search", m.handleUserSearch)

	m.Server = httptest.NewServer(mux)
	return m
}

// SetComments installs the comment list of an issue (for test setup).
func (m *MockServer) SetComments(issueKey string, comments ...Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[issueKey] = append([]Comment(nil), comments...)
}

// Comments returns an issue's comments in their current order.
func (m *MockServer) Comments(issueKey string) []Comment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Comment(nil), m.comments[issueKey]...)
}

// SetAttachments installs the stored attachments of an issue.
func (m *MockServer) SetAttachments(issueKey string, attachments ...Attachment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[issueKey] = append([]Attachment(nil), attachments...)
}

// Attachments returns an issue's attachments.
func (m *MockServer) Attachments(issueKey string) []Attachment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Attachment(nil), m.attachments[issueKey]...)
}

// SetProjects installs the project list.
func (m *MockServer) SetProjects(projects ...Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = append([]Project(nil), projects...)
}

// SetPriorities installs the priority list.
func (m *MockServer) SetPriorities(priorities ...Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priorities = append([]Priority(nil), priorities...)
}

func (m *MockServer) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Fields struct {
			Project struct {
				Key string `json:"key"`
			} `json:"project"`
			Summary string `json:"summary"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if payload.Fields.Project.Key == "" || payload.Fields.Summary == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"errorMessages": []string{"project and summary are required"},
		})
		return
	}

	m.mu.Lock()
	key := fmt.Sprintf("%s-%d", payload.Fields.Project.Key, m.nextIssueNum)
	m.nextIssueNum++
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": "10000", "key": key})
}

// handleIssue routes /rest/api/2/issue/{key}[/comment[/{id}]|/attachments|...].
func (m *MockServer) handleIssue(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/rest/api/2/issue/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		m.handleGetIssue(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "comment" && r.Method == http.MethodPost:
		m.handleAddComment(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "comment":
		m.handleCommentByID(w, r, parts[0], parts[2])
	case len(parts) == 2 && parts[1] == "attachments" && r.Method == http.MethodPost:
		m.handleUploadAttachment(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "watchers" && r.Method == http.MethodPost:
		m.handleAddWatcher(w, r, parts[0])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (m *MockServer) handleGetIssue(w http.ResponseWriter, r *http.Request, issueKey string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fields := map[string]any{}
	switch r.URL.Query().Get("fields") {
	case "comment":
		comments := m.comments[issueKey]
		if comments == nil {
			comments = []Comment{}
		}
		fields["comment"] = map[string]any{"comments": comments}
	case "attachment":
		attachments := m.attachments[issueKey]
		if attachments == nil {
			attachments = []Attachment{}
		}
		fields["attachment"] = attachments
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"key": issueKey, "fields": fields})
}

func (m *MockServer) handleAddComment(w http.ResponseWriter, r *http.Request, issueKey string) {
	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	comment := Comment{
		ID:     fmt.Sprint(m.nextCommentID),
		Body:   payload.Body,
		Author: Author{Name: m.authorName},
	}
	m.nextCommentID++
	m.comments[issueKey] = append(m.comments[issueKey], comment)
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(comment)
}

func (m *MockServer) handleCommentByID(w http.ResponseWriter, r *http.Request, issueKey, commentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	comments := m.comments[issueKey]
	idx := -1
	for i, c := range comments {
		if c.ID == commentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"errorMessages": []string{"comment not found"},
		})
		return
	}

	switch r.Method {
	case http.MethodPut:
		var payload struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		comments[idx].Body = payload.Body
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(comments[idx])
	case http.MethodDelete:
		m.comments[issueKey] = append(comments[:idx], comments[idx+1:]...)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *MockServer) handleUploadAttachment(w http.ResponseWriter, r *http.Request, issueKey string) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()
	io.Copy(io.Discard, file)

	m.mu.Lock()
	attachment := Attachment{
		ID:       fmt.Sprint(len(m.attachments[issueKey]) + 1),
		Filename: header.Filename,
	}
	m.attachments[issueKey] = append(m.attachments[issueKey], attachment)
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode([]Attachment{attachment})
}

func (m *MockServer) handleAddWatcher(w http.ResponseWriter, r *http.Request, issueKey string) {
	var userID string
	if err := json.NewDecoder(r.Body).Decode(&userID); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.watchers[issueKey] = append(m.watchers[issueKey], userID)
	m.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// Watchers returns the users subscribed to an issue through the API.
func (m *MockServer) Watchers(issueKey string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.watchers[issueKey]...)
}

func (m *MockServer) handleProjects(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	projects := m.projects
	if projects == nil {
		projects = []Project{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(projects)
}

// SetIssuetypes installs a project's creatable issue types.
func (m *MockServer) SetIssuetypes(projectKey string, types ...IssueType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issuetypes[projectKey] = append([]IssueType(nil), types...)
}

// SetCreateFields installs the create screen fields of a project's issue type.
func (m *MockServer) SetCreateFields(projectKey, issuetypeID string, fields ...FieldSchema) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createFields[projectKey+"/"+issuetypeID] = append([]FieldSchema(nil), fields...)
}

// SetUsers installs the user search results.
func (m *MockServer) SetUsers(users ...User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append([]User(nil), users...)
}

// handleCreateMeta routes /rest/api/2/issue/createmeta/{proj}/issuetypes[/{id}].
func (m *MockServer) handleCreateMeta(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/rest/api/2/issue/createmeta/"), "/")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case len(parts) == 2 && parts[1] == "issuetypes":
		types := m.issuetypes[parts[0]]
		if types == nil {
			types = []IssueType{}
		}
		json.NewEncoder(w).Encode(map[string]any{"values": types})
	case len(parts) == 3 && parts[1] == "issuetypes":
		fields := m.createFields[parts[0]+"/"+parts[2]]
		if fields == nil {
			fields = []FieldSchema{}
		}
		json.NewEncoder(w).Encode(map[string]any{"values": fields})
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (m *MockServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Match issue keys against the JQL text, the way tests expect:
	// any issue key appearing in the query string is a hit.
	jql := r.URL.Query().Get("jql")
	type hit struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
		} `json:"fields"`
	}
	var hits []hit
	for key := range m.comments {
		if strings.Contains(jql, key) {
			var h hit
			h.Key = key
			hits = append(hits, h)
		}
	}
	if hits == nil {
		hits = []hit{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"issues": hits})
}

func (m *MockServer) handleUserSearch(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fragment := strings.ToLower(r.URL.Query().Get("username"))
	matches := []User{}
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Name), fragment) ||
			strings.Contains(strings.ToLower(u.DisplayName), fragment) {
			matches = append(matches, u)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(matches)
}

func (m *MockServer) handlePriorities(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	priorities := m.priorities
	if priorities == nil {
		priorities = []Priority{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(priorities)
}
