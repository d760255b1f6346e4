// Package sync provides the synchronization engine between a chat thread and
// a tracker issue.
package sync

import (
	"context"
	"fmt"

	"github.com/jiraph/jiraph/internal/jira"
	"github.com/jiraph/jiraph/internal/logger"
	"github.com/jiraph/jiraph/internal/markup"
	"github.com/jiraph/jiraph/internal/slack"
	"golang.org/x/sync/errgroup"
)

// Engine drives synchronization passes between chat threads and tracker
// issues. It holds no cross-pass state: every pass rederives the remote
// picture from a fresh comment and attachment snapshot, so a failed pass is
// always safe to retry by re-invoking it.
type Engine struct {
	chat         *slack.Client
	tracker      *jira.Client
	formatter    *markup.Formatter
	commentLimit int
}

// NewEngine creates a sync engine over the given collaborators.
// commentLimit is the per-comment character ceiling applied when chunking.
func NewEngine(chat *slack.Client, tracker *jira.Client, commentLimit int) (*Engine, error) {
	if commentLimit <= 0 {
		return nil, fmt.Errorf("invalid comment limit %d: must be positive", commentLimit)
	}
	return &Engine{
		chat:         chat,
		tracker:      tracker,
		formatter:    markup.NewFormatter(chat),
		commentLimit: commentLimit,
	}, nil
}

// Outcome reports the result of one synchronization pass.
type Outcome struct {
	// Message is the human-readable summary for the invoking context.
	Message string
	// Updated reports whether the pass changed existing remote comments
	// (a resync) as opposed to only creating new ones.
	Updated bool
}

// Synchronize runs one full pass: fetch the thread, format and chunk it,
// reconcile comments and attachments against a fresh remote snapshot, and
// execute both plans. Any collaborator failure cancels the in-flight
// siblings and aborts the pass; nothing is checkpointed, so the caller
// retries by calling Synchronize again.
func (e *Engine) Synchronize(ctx context.Context, issueKey, channelID, threadTS string, newIssue bool, invokingUser string) (Outcome, error) {
	logger.Debug("sync: starting pass for issue %s, thread %s/%s", issueKey, channelID, threadTS)

	var messages []slack.Message
	var marker string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		messages, err = e.chat.ConversationsReplies(gctx, channelID, threadTS)
		if err != nil {
			return fmt.Errorf("failed to fetch thread: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		marker, err = e.chat.GetPermalink(gctx, channelID, threadTS)
		if err != nil {
			return fmt.Errorf("failed to resolve thread permalink: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := e.chat.PostEphemeral(gctx, channelID, threadTS, invokingUser, "Parsing thread started"); err != nil {
			return fmt.Errorf("failed to post start notice: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	// Drop bot-originated messages, including this engine's own progress
	// notices, so a resync never feeds the engine its own output.
	thread := make([]slack.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.FromEngine() {
			continue
		}
		thread = append(thread, msg)
	}
	logger.Debug("sync: %d of %d thread messages eligible", len(thread), len(messages))

	formatted := make([]string, len(thread))
	g, gctx = errgroup.WithContext(ctx)
	for i, msg := range thread {
		i, msg := i, msg
		g.Go(func() error {
			s, err := e.formatMessage(gctx, channelID, msg)
			if err != nil {
				return err
			}
			formatted[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	chunks := SplitComments(formatted, e.commentLimit)
	logger.Debug("sync: %d messages chunked into %d comments", len(thread), len(chunks))

	var changed bool
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		plan, err := e.planComments(gctx, issueKey, chunks, marker, newIssue)
		if err != nil {
			return err
		}
		changed = plan.Changed
		return e.executePlan(gctx, issueKey, plan)
	})
	g.Go(func() error {
		return e.syncAttachments(gctx, issueKey, thread)
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	if err := e.chat.PostEphemeral(ctx, channelID, threadTS, invokingUser, "Parsing thread completed"); err != nil {
		return Outcome{}, fmt.Errorf("failed to post completion notice: %w", err)
	}

	issueLink := fmt.Sprintf("<%s/browse/%s|%s>", e.tracker.BaseURL(), issueKey, issueKey)
	outcome := Outcome{Updated: changed}
	if changed {
		outcome.Message = fmt.Sprintf("User <@%s> updated comments from this thread in %s", invokingUser, issueLink)
	} else {
		outcome.Message = fmt.Sprintf("User <@%s> sent thread to %s", invokingUser, issueLink)
	}

	logger.Debug("sync: pass complete for issue %s (updated=%v)", issueKey, changed)
	return outcome, nil
}

// planComments builds the comment action plan for this pass. A brand-new
// issue has no owned comments by definition, so its plan is pure creates
// without a remote fetch.
func (e *Engine) planComments(ctx context.Context, issueKey string, chunks []string, marker string, newIssue bool) (Plan, error) {
	if newIssue {
		return PlanComments(chunks, nil, marker), nil
	}

	remote, err := e.tracker.GetIssueComments(ctx, issueKey)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to fetch issue comments: %w", err)
	}
	owned := FilterOwned(remote, marker, e.tracker.User())
	logger.Debug("sync: issue %s has %d comments, %d owned by this thread", issueKey, len(remote), len(owned))
	return PlanComments(chunks, owned, marker), nil
}

// executePlan runs all actions of a plan concurrently against the tracker.
func (e *Engine) executePlan(ctx context.Context, issueKey string, plan Plan) error {
	if len(plan.Actions) == 0 {
		logger.Debug("sync: no comment actions for issue %s", issueKey)
		return nil
	}
	logger.Debug("sync: executing %d comment actions on issue %s", len(plan.Actions), issueKey)

	g, gctx := errgroup.WithContext(ctx)
	for _, action := range plan.Actions {
		action := action
		g.Go(func() error {
			var err error
			switch action.Kind {
			case ActionCreate:
				err = e.tracker.AddComment(gctx, issueKey, action.Body)
			case ActionUpdate:
				err = e.tracker.EditComment(gctx, issueKey, action.CommentID, action.Body)
			case ActionDelete:
				err = e.tracker.DeleteComment(gctx, issueKey, action.CommentID)
			}
			if err != nil {
				return fmt.Errorf("%s comment on %s: %w", action.Kind, issueKey, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// syncAttachments uploads the thread's files that the issue does not store
// yet. Bytes are downloaded per file right before upload, never in bulk.
func (e *Engine) syncAttachments(ctx context.Context, issueKey string, thread []slack.Message) error {
	remote, err := e.tracker.GetIssueAttachments(ctx, issueKey)
	if err != nil {
		return fmt.Errorf("failed to fetch issue attachments: %w", err)
	}

	var files []slack.File
	for _, msg := range thread {
		files = append(files, msg.Files...)
	}
	uploads := PlanUploads(files, remote)
	if len(uploads) == 0 {
		logger.Debug("sync: no attachments to upload to issue %s", issueKey)
		return nil
	}
	logger.Debug("sync: uploading %d attachments to issue %s", len(uploads), issueKey)

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range uploads {
		f := f
		g.Go(func() error {
			data, err := e.chat.DownloadFile(gctx, f.URLPrivateDownload)
			if err != nil {
				return fmt.Errorf("download %s: %w", f.Name, err)
			}
			if err := e.tracker.UploadAttachment(gctx, issueKey, f.ID+f.Name, data); err != nil {
				return fmt.Errorf("upload %s: %w", f.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
