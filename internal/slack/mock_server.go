package slack

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockServer provides a fake Slack Web API for testing.
type MockServer struct {
	*httptest.Server
	mu         sync.RWMutex
	threads    map[string][]json.RawMessage // "channel|ts" -> raw message objects
	users      map[string]string            // user id -> name
	permalinks map[string]string            // message ts -> permalink
	files      map[string][]byte            // file id -> content
	identity   Identity

	ephemerals []PostedMessage
	messages   []PostedMessage
}

// PostedMessage records one chat.postMessage or chat.postEphemeral call.
type PostedMessage struct {
	Channel  string `json:"channel"`
	ThreadTS string `json:"thread_ts"`
	User     string `json:"user"`
	Text     string `json:"text"`
}

// NewMockServer creates a mock Slack Web API server.
func NewMockServer() *MockServer {
	m := &MockServer{
		threads:    make(map[string][]json.RawMessage),
		users:      make(map[string]string),
		permalinks: make(map[string]string),
		files:      make(map[string][]byte),
		identity:   Identity{UserID: "UBOT", BotID: "B000", User: "jiraph"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.replies", m.handleReplies)
	mux.HandleFunc("/users.info", m.handleUserInfo)
	mux.HandleFunc("/chat.getPermalink", m.handlePermalink)
	mux.HandleFunc("/chat.postEphemeral", m.handlePostEphemeral)
	mux.HandleFunc("/chat.postMessage", m.handlePostMessage)
	mux.HandleFunc("/auth.test", m.handleAuthTest)
	mux.HandleFunc("/files/", m.handleFileDownload)

	m.Server = httptest.NewServer(mux)
	return m
}

func threadKey(channel, ts string) string {
	return channel + "|" + ts
}

// SetThread installs the raw JSON message objects of a thread.
func (m *MockServer) SetThread(channel, ts string, rawMessages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]json.RawMessage, len(rawMessages))
	for i, raw := range rawMessages {
		msgs[i] = json.RawMessage(raw)
	}
	m.threads[threadKey(channel, ts)] = msgs
}

// AddUser registers a user id to name mapping.
func (m *MockServer) AddUser(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = name
}

// SetPermalink registers the permalink returned for a message ts.
func (m *MockServer) SetPermalink(ts, link string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permalinks[ts] = link
}

// AddFile registers downloadable file content and returns its download URL.
func (m *MockServer) AddFile(id string, content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = content
	return m.URL + "/files/" + id
}

// Ephemerals returns the recorded chat.postEphemeral calls.
func (m *MockServer) Ephemerals() []PostedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PostedMessage(nil), m.ephemerals...)
}

// Messages returns the recorded chat.postMessage calls.
func (m *MockServer) Messages() []PostedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PostedMessage(nil), m.messages...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code string) {
	writeJSON(w, map[string]any{"ok": false, "error": code})
}

func (m *MockServer) handleReplies(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := threadKey(r.URL.Query().Get("channel"), r.URL.Query().Get("ts"))
	msgs, ok := m.threads[key]
	if !ok {
		writeAPIError(w, "thread_not_found")
		return
	}

	var sb strings.Builder
	sb.WriteString(`{"ok":true,"messages":[`)
	for i, msg := range msgs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.Write(msg)
	}
	sb.WriteString(`]}`)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, sb.String())
}

func (m *MockServer) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.users[r.URL.Query().Get("user")]
	if !ok {
		writeAPIError(w, "user_not_found")
		return
	}
	writeJSON(w, map[string]any{"ok": true, "user": map[string]string{"name": name}})
}

func (m *MockServer) handlePermalink(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.permalinks[r.URL.Query().Get("message_ts")]
	if !ok {
		writeAPIError(w, "message_not_found")
		return
	}
	writeJSON(w, map[string]any{"ok": true, "permalink": link})
}

func (m *MockServer) handlePostEphemeral(w http.ResponseWriter, r *http.Request) {
	var posted PostedMessage
	if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
		writeAPIError(w, "invalid_payload")
		return
	}

	m.mu.Lock()
	m.ephemerals = append(m.ephemerals, posted)
	m.mu.Unlock()

	writeJSON(w, map[string]any{"ok": true})
}

func (m *MockServer) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var posted PostedMessage
	if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
		writeAPIError(w, "invalid_payload")
		return
	}

	m.mu.Lock()
	m.messages = append(m.messages, posted)
	m.mu.Unlock()

	writeJSON(w, map[string]any{"ok": true})
}

func (m *MockServer) handleAuthTest(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, map[string]any{
		"ok":      true,
		"user_id": m.identity.UserID,
		"bot_id":  m.identity.BotID,
		"user":    m.identity.User,
	})
}

func (m *MockServer) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id := strings.TrimPrefix(r.URL.Path, "/files/")
	content, ok := m.files[id]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Write(content)
}
