package sync

import (
	"reflect"
	"testing"

	"github.com/jiraph/jiraph/internal/jira"
)

func ownedComment(id, body string) jira.Comment {
	return jira.Comment{ID: id, Body: body, Author: jira.Author{Name: "bot"}}
}

func TestFilterOwned(t *testing.T) {
	marker := "\n---- \n??[~alice]??"
	comments := []jira.Comment{
		{ID: "1", Body: marker + " first", Author: jira.Author{Name: "bot"}},
		{ID: "2", Body: "manual note", Author: jira.Author{Name: "bot"}},
		{ID: "3", Body: marker + " impostor", Author: jira.Author{Name: "someone"}},
		{ID: "4", Body: marker + " second", Author: jira.Author{Name: "bot"}},
	}

	owned := FilterOwned(comments, marker, "bot")

	if len(owned) != 2 {
		t.Fatalf("got %d owned comments, want 2", len(owned))
	}
	if owned[0].ID != "1" || owned[1].ID != "4" {
		t.Errorf("owned ids = %s, %s; want 1, 4", owned[0].ID, owned[1].ID)
	}
}

func TestFilterOwnedEmpty(t *testing.T) {
	if got := FilterOwned(nil, "m", "bot"); got != nil {
		t.Errorf("FilterOwned(nil) = %v, want nil", got)
	}
}

func TestPlanComments(t *testing.T) {
	tests := []struct {
		name        string
		local       []string
		remote      []jira.Comment
		want        []Action
		wantChanged bool
	}{
		{
			name:  "first sync creates everything",
			local: []string{"a", "b"},
			want: []Action{
				{Kind: ActionCreate, Body: "m:a"},
				{Kind: ActionCreate, Body: "m:b"},
			},
		},
		{
			name:   "unchanged resync plans nothing",
			local:  []string{"a", "b"},
			remote: []jira.Comment{ownedComment("1", "m:a"), ownedComment("2", "m:b")},
		},
		{
			name:   "edited chunk updates in place",
			local:  []string{"a2", "b"},
			remote: []jira.Comment{ownedComment("1", "m:a"), ownedComment("2", "m:b")},
			want: []Action{
				{Kind: ActionUpdate, CommentID: "1", Body: "m:a2"},
			},
			wantChanged: true,
		},
		{
			name:   "grown thread appends after updates",
			local:  []string{"a", "b", "c"},
			remote: []jira.Comment{ownedComment("1", "m:a")},
			want: []Action{
				{Kind: ActionCreate, Body: "m:b"},
				{Kind: ActionCreate, Body: "m:c"},
			},
		},
		{
			name:   "shrunk thread deletes the surplus",
			local:  []string{"a"},
			remote: []jira.Comment{ownedComment("1", "m:a"), ownedComment("2", "m:b"), ownedComment("3", "m:c")},
			want: []Action{
				{Kind: ActionDelete, CommentID: "2"},
				{Kind: ActionDelete, CommentID: "3"},
			},
			wantChanged: true,
		},
		{
			name:   "empty thread deletes everything",
			remote: []jira.Comment{ownedComment("1", "m:a")},
			want: []Action{
				{Kind: ActionDelete, CommentID: "1"},
			},
			wantChanged: true,
		},
		{
			name: "both empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanComments(tt.local, tt.remote, "m:")
			if !reflect.DeepEqual(plan.Actions, tt.want) {
				t.Errorf("actions = %+v, want %+v", plan.Actions, tt.want)
			}
			if plan.Changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", plan.Changed, tt.wantChanged)
			}
		})
	}
}

// TestPlanCommentsTotality checks the action count arithmetic across a grid
// of local and remote lengths: min(L,R) positions pair up, the rest become
// creates or deletes.
func TestPlanCommentsTotality(t *testing.T) {
	for localN := 0; localN <= 4; localN++ {
		for remoteN := 0; remoteN <= 4; remoteN++ {
			local := make([]string, localN)
			remote := make([]jira.Comment, remoteN)
			for i := range local {
				local[i] = string(rune('a' + i))
			}
			for i := range remote {
				// Distinct from every local chunk so the pairs
				// all become updates.
				remote[i] = ownedComment(string(rune('1'+i)), "old")
			}

			plan := PlanComments(local, remote, "m:")

			var creates, updates, deletes int
			for _, a := range plan.Actions {
				switch a.Kind {
				case ActionCreate:
					creates++
				case ActionUpdate:
					updates++
				case ActionDelete:
					deletes++
				}
			}

			pairs := localN
			if remoteN < pairs {
				pairs = remoteN
			}
			if updates != pairs {
				t.Errorf("local=%d remote=%d: updates = %d, want %d", localN, remoteN, updates, pairs)
			}
			if want := localN - pairs; creates != want {
				t.Errorf("local=%d remote=%d: creates = %d, want %d", localN, remoteN, creates, want)
			}
			if want := remoteN - pairs; deletes != want {
				t.Errorf("local=%d remote=%d: deletes = %d, want %d", localN, remoteN, deletes, want)
			}
		}
	}
}

func TestPlanCommentsIdempotent(t *testing.T) {
	local := []string{"a", "b"}
	first := PlanComments(local, nil, "m:")

	// Apply the first plan by hand and replan against the result.
	var remote []jira.Comment
	for i, a := range first.Actions {
		remote = append(remote, ownedComment(string(rune('1'+i)), a.Body))
	}
	second := PlanComments(local, remote, "m:")

	if len(second.Actions) != 0 || second.Changed {
		t.Errorf("replan after apply = %+v, want empty plan", second)
	}
}
