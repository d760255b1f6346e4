package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jiraph/jiraph/internal/slack"
	"golang.org/x/sync/errgroup"
)

// jiraImageExts are the formats Jira can render as inline thumbnails; any
// other attachment is referenced as a footnote link instead.
var jiraImageExts = []string{"bmp", "dcm", "gif", "heif", "heic", "jpg", "jpeg", "png", "psd", "tif", "tiff"}

func isJiraImage(name string) bool {
	for _, ext := range jiraImageExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// attachmentRefs renders the inline references to a message's files.
// Thumbnails go first, footnote links after, inaccessible files are
// skipped.
func attachmentRefs(files []slack.File) string {
	var refs []string
	for _, f := range files {
		if f.Inaccessible() {
			continue
		}
		if isJiraImage(f.Name) {
			refs = append([]string{"!" + f.ID + f.Name + "|thumbnail!"}, refs...)
		} else {
			refs = append(refs, "\n[^"+f.ID+f.Name+"]")
		}
	}
	return strings.Join(refs, " ")
}

// formatTimestamp renders a chat timestamp ("1634665272.000200") as a local
// wall-clock time. Unparseable timestamps pass through untouched.
func formatTimestamp(ts string) string {
	seconds := ts
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		seconds = ts[:i]
	}
	n, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return ts
	}
	return time.Unix(n, 0).Format("2006-01-02 15:04:05")
}

// formatMessage renders one thread message as a Jira comment fragment: an
// attribution header linking back to the message, the formatted body, then
// the attachment references. The permalink and author lookups run
// concurrently.
func (e *Engine) formatMessage(ctx context.Context, channelID string, msg slack.Message) (string, error) {
	var permalink, userName string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		permalink, err = e.chat.GetPermalink(gctx, channelID, msg.TS)
		if err != nil {
			return fmt.Errorf("resolve permalink for %s: %w", msg.TS, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		userName, err = e.chat.ResolveUserName(gctx, msg.User)
		if err != nil {
			return fmt.Errorf("resolve author of %s: %w", msg.TS, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	body := msg.Text
	if len(msg.Blocks) > 0 {
		parts := make([]string, len(msg.Blocks))
		bg, bctx := errgroup.WithContext(ctx)
		for i, block := range msg.Blocks {
			i, block := i, block
			bg.Go(func() error {
				s, err := e.formatter.FormatBlock(bctx, block)
				if err != nil {
					return err
				}
				parts[i] = s
				return nil
			})
		}
		if err := bg.Wait(); err != nil {
			return "", err
		}
		body = strings.Join(parts, " ")
	}

	return fmt.Sprintf("\n---- \n??[~%s]?? [{{%s}}|%s]\n\n %s \n %s \n",
		userName, formatTimestamp(msg.TS), permalink, body, attachmentRefs(msg.Files)), nil
}
