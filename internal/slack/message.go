package slack

import (
	"encoding/json"

	"github.com/jiraph/jiraph/internal/markup"
)

// FileAccessNotFound marks a file whose source has been deleted; such files
// are excluded from syncing.
const FileAccessNotFound = "file_not_found"

// File describes one attachment of a message. ID plus Name is the file's
// stable identity across sync runs.
type File struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	URLPrivateDownload string `json:"url_private_download"`
	FileAccess         string `json:"file_access"`
}

// Inaccessible reports whether the file's source is gone.
func (f File) Inaccessible() bool {
	return f.FileAccess == FileAccessNotFound
}

// Message is one message of a thread. Blocks holds the structured rich text
// content of the message's first rich text block; when empty, Text is the
// raw fallback.
type Message struct {
	User   string
	BotID  string
	TS     string
	Text   string
	Blocks []markup.Block
	Files  []File
}

// FromEngine reports whether the message was posted by a bot, including this
// engine's own progress notices.
func (m Message) FromEngine() bool {
	return m.BotID != ""
}

// UnmarshalJSON flattens the wire shape: messages carry a list of top-level
// blocks, of which only the first rich text block's elements matter here.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		User   string `json:"user"`
		BotID  string `json:"bot_id"`
		TS     string `json:"ts"`
		Text   string `json:"text"`
		Files  []File `json:"files"`
		Blocks []struct {
			Type     string         `json:"type"`
			Elements []markup.Block `json:"elements"`
		} `json:"blocks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.User = raw.User
	m.BotID = raw.BotID
	m.TS = raw.TS
	m.Text = raw.Text
	m.Files = raw.Files
	m.Blocks = nil
	if len(raw.Blocks) > 0 {
		m.Blocks = raw.Blocks[0].Elements
	}
	return nil
}
