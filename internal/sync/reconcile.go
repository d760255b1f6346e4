package sync

import (
	"strings"

	"github.com/jiraph/jiraph/internal/jira"
)

// ActionKind classifies one reconciliation action.
type ActionKind int

const (
	// ActionCreate posts a new comment.
	ActionCreate ActionKind = iota
	// ActionUpdate replaces an existing comment's body.
	ActionUpdate
	// ActionDelete removes an existing comment.
	ActionDelete
)

// String returns the lower-case name of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is one step of a reconciliation plan. CommentID addresses the
// remote comment for updates and deletes; Body carries the new content for
// creates and updates.
type Action struct {
	Kind      ActionKind
	CommentID string
	Body      string
}

// Plan is the ordered action list of one reconciliation, built fresh each
// pass and executed once. Changed reports whether any update or delete was
// planned, distinguishing a first sync from a resync that altered remote
// state.
type Plan struct {
	Actions []Action
	Changed bool
}

// FilterOwned returns the remote comments this engine owns on an issue:
// those whose body starts with the thread origin marker and whose author is
// the engine's own Jira user. Everything else is foreign and is never
// touched.
func FilterOwned(comments []jira.Comment, marker, author string) []jira.Comment {
	var owned []jira.Comment
	for _, c := range comments {
		if strings.HasPrefix(c.Body, marker) && c.Author.Name == author {
			owned = append(owned, c)
		}
	}
	return owned
}

// PlanComments pairs local chunks with owned remote comments by position and
// emits the actions that make the remote side match. Position is the sole
// correlation key: editing an early thread message shifts the content of
// every later remote comment through updates while their ids stay fixed.
// Updates whose body already matches the remote comment are skipped, which
// makes a no-change resync produce an empty plan.
func PlanComments(local []string, remote []jira.Comment, marker string) Plan {
	var plan Plan

	n := len(local)
	if len(remote) > n {
		n = len(remote)
	}
	for i := 0; i < n; i++ {
		switch {
		case i < len(local) && i < len(remote):
			body := marker + local[i]
			if body == remote[i].Body {
				continue
			}
			plan.Actions = append(plan.Actions, Action{
				Kind:      ActionUpdate,
				CommentID: remote[i].ID,
				Body:      body,
			})
			plan.Changed = true
		case i < len(local):
			plan.Actions = append(plan.Actions, Action{
				Kind: ActionCreate,
				Body: marker + local[i],
			})
		default:
			plan.Actions = append(plan.Actions, Action{
				Kind:      ActionDelete,
				CommentID: remote[i].ID,
			})
			plan.Changed = true
		}
	}
	return plan
}
