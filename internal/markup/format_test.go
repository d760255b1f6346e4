package markup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeResolver resolves user ids from a fixed table, optionally delaying
// each lookup to shake out ordering bugs in concurrent formatting.
type fakeResolver struct {
	names  map[string]string
	delays map[string]time.Duration
}

func (r *fakeResolver) ResolveUserName(ctx context.Context, userID string) (string, error) {
	if d, ok := r.delays[userID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	name, ok := r.names[userID]
	if !ok {
		return "", fmt.Errorf("unknown user %q", userID)
	}
	return name, nil
}

func newTestFormatter() *Formatter {
	return NewFormatter(&fakeResolver{
		names: map[string]string{
			"U1": "alice",
			"U2": "bob",
			"U3": "carol",
		},
	})
}

func TestFormatElement(t *testing.T) {
	f := newTestFormatter()

	tests := []struct {
		name string
		el   Element
		want string
	}{
		{
			name: "plain text",
			el:   Element{Type: ElementText, Text: "hi"},
			want: "hi",
		},
		{
			name: "bold text",
			el:   Element{Type: ElementText, Text: "hi", Style: Style{Bold: true}},
			want: "*hi*",
		},
		{
			name: "italic text",
			el:   Element{Type: ElementText, Text: "hi", Style: Style{Italic: true}},
			want: "_hi_",
		},
		{
			name: "strike text",
			el:   Element{Type: ElementText, Text: "hi", Style: Style{Strike: true}},
			want: "-hi-",
		},
		{
			name: "bold italic strike nest in fixed order",
			el:   Element{Type: ElementText, Text: "hi", Style: Style{Bold: true, Italic: true, Strike: true}},
			want: "*_-hi-_*",
		},
		{
			name: "code renders as colored quote",
			el:   Element{Type: ElementText, Text: "x", Style: Style{Code: true}},
			want: "{quote}{color:#DE350B}x{color}{quote}",
		},
		{
			name: "bold code wraps the styled text",
			el:   Element{Type: ElementText, Text: "x", Style: Style{Bold: true, Code: true}},
			want: "{quote}{color:#DE350B}*x*{color}{quote}",
		},
		{
			name: "surrounding spaces are trimmed",
			el:   Element{Type: ElementText, Text: "  hi  ", Style: Style{Bold: true}},
			want: "*hi*",
		},
		{
			name: "link with display text",
			el:   Element{Type: ElementLink, Text: "go", URL: "http://a"},
			want: "[go|http://a]",
		},
		{
			name: "bare link",
			el:   Element{Type: ElementLink, URL: "http://a"},
			want: "http://a",
		},
		{
			name: "styled link text",
			el:   Element{Type: ElementLink, Text: "go", URL: "http://a", Style: Style{Bold: true}},
			want: "[*go*|http://a]",
		},
		{
			name: "user mention",
			el:   Element{Type: ElementUser, UserID: "U1"},
			want: "[~alice]",
		},
		{
			name: "known emoji",
			el:   Element{Type: ElementEmoji, Name: "smile"},
			want: "😄",
		},
		{
			name: "unknown emoji falls back to shortcode",
			el:   Element{Type: ElementEmoji, Name: "not_a_real_emoji_xyz"},
			want: ":not_a_real_emoji_xyz:",
		},
		{
			name: "broadcast",
			el:   Element{Type: ElementBroadcast, Range: "here"},
			want: "@here",
		},
		{
			name: "unrecognized kind renders empty",
			el:   Element{Type: "hologram", Text: "ignored"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.FormatElement(context.Background(), tt.el)
			if err != nil {
				t.Fatalf("FormatElement() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FormatElement() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatElementResolverError(t *testing.T) {
	f := newTestFormatter()

	_, err := f.FormatElement(context.Background(), Element{Type: ElementUser, UserID: "UNKNOWN"})
	if err == nil {
		t.Fatal("expected error for unresolvable user, got nil")
	}
}

func TestFormatBlock(t *testing.T) {
	f := newTestFormatter()

	tests := []struct {
		name  string
		block Block
		want  string
	}{
		{
			name: "section joins elements with spaces",
			block: Block{Type: BlockSection, Elements: []Element{
				{Type: ElementText, Text: "hello"},
				{Type: ElementText, Text: "world", Style: Style{Bold: true}},
				{Type: ElementLink, URL: "http://a"},
			}},
			want: "hello *world* http://a",
		},
		{
			name: "ordered list",
			block: Block{Type: BlockList, ListStyle: ListOrdered, Items: [][]Element{
				{{Type: ElementText, Text: "one"}},
				{{Type: ElementText, Text: "two"}},
			}},
			want: "\n# one\n# two",
		},
		{
			name: "bullet list",
			block: Block{Type: BlockList, ListStyle: ListBullet, Items: [][]Element{
				{{Type: ElementText, Text: "one"}},
				{{Type: ElementText, Text: "two"}},
			}},
			want: "\n* one\n* two",
		},
		{
			name: "list renders only each item's first element",
			block: Block{Type: BlockList, ListStyle: ListBullet, Items: [][]Element{
				{{Type: ElementText, Text: "kept"}, {Type: ElementText, Text: "dropped"}},
			}},
			want: "\n* kept",
		},
		{
			name:  "empty list",
			block: Block{Type: BlockList, ListStyle: ListOrdered},
			want:  "",
		},
		{
			name: "quote",
			block: Block{Type: BlockQuote, Elements: []Element{
				{Type: ElementText, Text: "wise"},
				{Type: ElementText, Text: "words"},
			}},
			want: "{quote}wise words{quote}",
		},
		{
			name: "preformatted",
			block: Block{Type: BlockPreformatted, Elements: []Element{
				{Type: ElementText, Text: "let x = 1"},
			}},
			want: "{code}let x = 1{code}",
		},
		{
			name:  "unrecognized block kind renders empty",
			block: Block{Type: "rich_text_future"},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.FormatBlock(context.Background(), tt.block)
			if err != nil {
				t.Fatalf("FormatBlock() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FormatBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestFormatBlockOrderPreserved staggers resolution delays so that later
// siblings finish first; the joined output must still follow input order.
func TestFormatBlockOrderPreserved(t *testing.T) {
	f := NewFormatter(&fakeResolver{
		names: map[string]string{"U1": "alice", "U2": "bob", "U3": "carol"},
		delays: map[string]time.Duration{
			"U1": 30 * time.Millisecond,
			"U2": 15 * time.Millisecond,
			"U3": 0,
		},
	})

	block := Block{Type: BlockSection, Elements: []Element{
		{Type: ElementUser, UserID: "U1"},
		{Type: ElementUser, UserID: "U2"},
		{Type: ElementUser, UserID: "U3"},
	}}

	got, err := f.FormatBlock(context.Background(), block)
	if err != nil {
		t.Fatalf("FormatBlock() unexpected error: %v", err)
	}
	want := "[~alice] [~bob] [~carol]"
	if got != want {
		t.Errorf("FormatBlock() = %q, want %q", got, want)
	}
}

func TestFormatBlockResolverFailureFailsBlock(t *testing.T) {
	f := newTestFormatter()

	block := Block{Type: BlockSection, Elements: []Element{
		{Type: ElementText, Text: "ok"},
		{Type: ElementUser, UserID: "MISSING"},
	}}

	if _, err := f.FormatBlock(context.Background(), block); err == nil {
		t.Fatal("expected error when a sibling lookup fails, got nil")
	}
}

func TestFormatBlockContextCanceled(t *testing.T) {
	f := NewFormatter(&fakeResolver{
		names:  map[string]string{"U1": "alice"},
		delays: map[string]time.Duration{"U1": time.Second},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := Block{Type: BlockSection, Elements: []Element{
		{Type: ElementUser, UserID: "U1"},
	}}

	_, err := f.FormatBlock(ctx, block)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBlockUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Block
	}{
		{
			name: "section",
			data: `{"type":"rich_text_section","elements":[
				{"type":"text","text":"hi","style":{"bold":true}},
				{"type":"link","url":"http://a"}]}`,
			want: Block{Type: BlockSection, Elements: []Element{
				{Type: ElementText, Text: "hi", Style: Style{Bold: true}},
				{Type: ElementLink, URL: "http://a"},
			}},
		},
		{
			name: "list with nested sections",
			data: `{"type":"rich_text_list","style":"ordered","elements":[
				{"type":"rich_text_section","elements":[{"type":"text","text":"one"}]},
				{"type":"rich_text_section","elements":[{"type":"text","text":"two"}]}]}`,
			want: Block{Type: BlockList, ListStyle: ListOrdered, Items: [][]Element{
				{{Type: ElementText, Text: "one"}},
				{{Type: ElementText, Text: "two"}},
			}},
		},
		{
			name: "quote",
			data: `{"type":"rich_text_quote","elements":[{"type":"text","text":"q"}]}`,
			want: Block{Type: BlockQuote, Elements: []Element{
				{Type: ElementText, Text: "q"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Block
			if err := json.Unmarshal([]byte(tt.data), &got); err != nil {
				t.Fatalf("Unmarshal() unexpected error: %v", err)
			}
			if got.Type != tt.want.Type || got.ListStyle != tt.want.ListStyle {
				t.Fatalf("Unmarshal() = %+v, want %+v", got, tt.want)
			}
			if len(got.Elements) != len(tt.want.Elements) {
				t.Fatalf("Elements = %d, want %d", len(got.Elements), len(tt.want.Elements))
			}
			for i := range got.Elements {
				if got.Elements[i] != tt.want.Elements[i] {
					t.Errorf("Elements[%d] = %+v, want %+v", i, got.Elements[i], tt.want.Elements[i])
				}
			}
			if len(got.Items) != len(tt.want.Items) {
				t.Fatalf("Items = %d, want %d", len(got.Items), len(tt.want.Items))
			}
			for i := range got.Items {
				if len(got.Items[i]) != len(tt.want.Items[i]) {
					t.Fatalf("Items[%d] length = %d, want %d", i, len(got.Items[i]), len(tt.want.Items[i]))
				}
				for j := range got.Items[i] {
					if got.Items[i][j] != tt.want.Items[i][j] {
						t.Errorf("Items[%d][%d] = %+v, want %+v", i, j, got.Items[i][j], tt.want.Items[i][j])
					}
				}
			}
		})
	}
}
