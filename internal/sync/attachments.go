package sync

import (
	"github.com/jiraph/jiraph/internal/jira"
	"github.com/jiraph/jiraph/internal/slack"
)

// PlanUploads returns the thread files that still need uploading to the
// issue, in input order. A file's identity is its source id concatenated
// with its filename; files already stored under that identity and files
// whose source is gone are skipped. Attachments are append-only: there is
// no update or delete path.
func PlanUploads(files []slack.File, remote []jira.Attachment) []slack.File {
	attached := make(map[string]struct{}, len(remote))
	for _, a := range remote {
		attached[a.Filename] = struct{}{}
	}

	var uploads []slack.File
	for _, f := range files {
		if f.Inaccessible() {
			continue
		}
		if _, ok := attached[f.ID+f.Name]; ok {
			continue
		}
		uploads = append(uploads, f)
	}
	return uploads
}
