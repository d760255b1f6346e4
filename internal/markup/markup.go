// Package markup converts structured chat message content into Jira wiki markup.
package markup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kyokomi/emoji/v2"
	"golang.org/x/sync/errgroup"
)

// ElementType identifies the kind of a leaf element.
type ElementType string

const (
	ElementText      ElementType = "text"
	ElementLink      ElementType = "link"
	ElementUser      ElementType = "user"
	ElementEmoji     ElementType = "emoji"
	ElementBroadcast ElementType = "broadcast"
)

// Style holds the text style flags of a text element.
type Style struct {
	Bold   bool `json:"bold,omitempty"`
	Italic bool `json:"italic,omitempty"`
	Strike bool `json:"strike,omitempty"`
	Code   bool `json:"code,omitempty"`
}

// Element is one leaf node of a message's rich text content.
// Which fields are meaningful depends on Type.
type Element struct {
	Type   ElementType `json:"type"`
	Text   string      `json:"text,omitempty"`
	Style  Style       `json:"style,omitempty"`
	URL    string      `json:"url,omitempty"`
	UserID string      `json:"user_id,omitempty"`
	Name   string      `json:"name,omitempty"`
	Range  string      `json:"range,omitempty"`
}

// BlockType identifies the kind of a composite block.
type BlockType string

const (
	BlockSection      BlockType = "rich_text_section"
	BlockList         BlockType = "rich_text_list"
	BlockQuote        BlockType = "rich_text_quote"
	BlockPreformatted BlockType = "rich_text_preformatted"
)

// List styles.
const (
	ListOrdered = "ordered"
	ListBullet  = "bullet"
)

// Block is one composite node of a message. Blocks never nest other blocks:
// sections, quotes and preformatted runs hold Elements directly, and each
// list item is a slice of concrete Elements.
type Block struct {
	Type      BlockType
	ListStyle string
	Elements  []Element
	Items     [][]Element
}

// UnmarshalJSON decodes the wire shape of a rich text block. List blocks
// carry their items as nested sections; everything else carries elements
// directly.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     BlockType         `json:"type"`
		Style    string            `json:"style"`
		Elements []json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.Type = raw.Type
	b.ListStyle = raw.Style
	b.Elements = nil
	b.Items = nil

	if raw.Type == BlockList {
		for _, item := range raw.Elements {
			var section struct {
				Elements []Element `json:"elements"`
			}
			if err := json.Unmarshal(item, &section); err != nil {
				return fmt.Errorf("decode list item: %w", err)
			}
			b.Items = append(b.Items, section.Elements)
		}
		return nil
	}

	for _, el := range raw.Elements {
		var elem Element
		if err := json.Unmarshal(el, &elem); err != nil {
			return fmt.Errorf("decode element: %w", err)
		}
		b.Elements = append(b.Elements, elem)
	}
	return nil
}

// UserResolver resolves an opaque user reference to a display name.
// Resolution may perform a remote call.
type UserResolver interface {
	ResolveUserName(ctx context.Context, userID string) (string, error)
}

// Formatter renders elements and blocks as Jira wiki markup.
type Formatter struct {
	users   UserResolver
	aliases map[string]string
}

// NewFormatter creates a formatter that resolves user mentions through users.
func NewFormatter(users UserResolver) *Formatter {
	return &Formatter{
		users:   users,
		aliases: emoji.CodeMap(),
	}
}

// formatText wraps a text element's content with Jira style markers.
// Marker order is fixed: bold, italic, strikethrough; close markers mirror
// the open markers. Inline code renders as a colored quote block rather than
// literal code markup.
func formatText(el Element) string {
	text := strings.Trim(el.Text, " ")

	var markers []string
	if el.Style.Bold {
		markers = append(markers, "*")
	}
	if el.Style.Italic {
		markers = append(markers, "_")
	}
	if el.Style.Strike {
		markers = append(markers, "-")
	}
	if len(markers) > 0 {
		var b strings.Builder
		for _, m := range markers {
			b.WriteString(m)
		}
		b.WriteString(text)
		for i := len(markers) - 1; i >= 0; i-- {
			b.WriteString(markers[i])
		}
		text = b.String()
	}

	if el.Style.Code {
		text = "{quote}{color:#DE350B}" + text + "{color}{quote}"
	}
	return text
}

// FormatElement renders a single element. Unrecognized element kinds render
// as an empty string so new chat element types never fail a sync.
func (f *Formatter) FormatElement(ctx context.Context, el Element) (string, error) {
	switch el.Type {
	case ElementText:
		return formatText(el), nil
	case ElementLink:
		if el.Text != "" {
			return "[" + formatText(el) + "|" + el.URL + "]", nil
		}
		return el.URL, nil
	case ElementUser:
		name, err := f.users.ResolveUserName(ctx, el.UserID)
		if err != nil {
			return "", fmt.Errorf("resolve user %q: %w", el.UserID, err)
		}
		return "[~" + name + "]", nil
	case ElementEmoji:
		code := ":" + el.Name + ":"
		if glyph, ok := f.aliases[code]; ok {
			return glyph, nil
		}
		return code, nil
	case ElementBroadcast:
		return "@" + el.Range, nil
	default:
		return "", nil
	}
}

// FormatBlock renders a composite block. Sibling elements are formatted
// concurrently and joined in their original order.
func (f *Formatter) FormatBlock(ctx context.Context, b Block) (string, error) {
	switch b.Type {
	case BlockSection:
		parts, err := f.formatAll(ctx, b.Elements)
		if err != nil {
			return "", err
		}
		return strings.Join(parts, " "), nil
	case BlockList:
		firsts := make([]Element, 0, len(b.Items))
		for _, item := range b.Items {
			if len(item) == 0 {
				continue
			}
			firsts = append(firsts, item[0])
		}
		parts, err := f.formatAll(ctx, firsts)
		if err != nil {
			return "", err
		}
		if len(parts) == 0 {
			return "", nil
		}
		prefix := "\n# "
		if b.ListStyle == ListBullet {
			prefix = "\n* "
		}
		return prefix + strings.Join(parts, prefix), nil
	case BlockQuote:
		parts, err := f.formatAll(ctx, b.Elements)
		if err != nil {
			return "", err
		}
		return "{quote}" + strings.Join(parts, " ") + "{quote}", nil
	case BlockPreformatted:
		parts, err := f.formatAll(ctx, b.Elements)
		if err != nil {
			return "", err
		}
		return "{code}" + strings.Join(parts, " ") + "{code}", nil
	default:
		return "", nil
	}
}

// formatAll formats elements concurrently, preserving input order in the
// result. The first failure cancels the remaining lookups.
func (f *Formatter) formatAll(ctx context.Context, elems []Element) ([]string, error) {
	parts := make([]string, len(elems))
	g, gctx := errgroup.WithContext(ctx)
	for i, el := range elems {
		i, el := i, el
		g.Go(func() error {
			s, err := f.FormatElement(gctx, el)
			if err != nil {
				return err
			}
			parts[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}
