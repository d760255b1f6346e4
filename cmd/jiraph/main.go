// Package main provides the CLI entrypoint for jiraph.
package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jiraph/jiraph/internal/config"
	"github.com/jiraph/jiraph/internal/jira"
	"github.com/jiraph/jiraph/internal/logger"
	"github.com/jiraph/jiraph/internal/slack"
	"github.com/jiraph/jiraph/internal/sync"
	"github.com/spf13/cobra"
)

// maxSummaryLength is Jira's ceiling on the summary field.
const maxSummaryLength = 255

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	configPath string
	logLevel   string

	createProject     string
	createIssuetype   string
	createSummary     string
	createDescription string
)

var rootCmd = &cobra.Command{
	Use:   "jiraph",
	Short: "Mirror Slack threads onto Jira issues",
	Long: `jiraph synchronizes a Slack thread onto a Jira issue: thread
messages become Jira comments with attribution headers, file
uploads become issue attachments. Re-running a sync reconciles
the issue against the current state of the thread.`,
}

var attachCmd = &cobra.Command{
	Use:   "attach <issue-key> <channel-id> <thread-ts>",
	Short: "Sync a thread onto an existing issue",
	Long: `Sync a Slack thread onto an existing Jira issue.

The issue key must be in the format PROJECT-123. The channel id and
thread timestamp identify the thread; the timestamp is the ts of the
thread's first message (e.g. 1634665272.000200).`,
	Args: cobra.ExactArgs(3),
	RunE: runAttach,
}

var createCmd = &cobra.Command{
	Use:   "create <channel-id> <thread-ts>",
	Short: "Create a new issue from a thread",
	Long: `Create a new Jira issue and sync a Slack thread onto it.

The project key and issue type id select where the issue is created;
the summary is required and capped at 255 characters.`,
	Args: cobra.ExactArgs(2),
	RunE: runCreate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the jiraph version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "jiraph %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a yaml config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	createCmd.Flags().StringVar(&createProject, "project", "", "project key to create the issue in")
	createCmd.Flags().StringVar(&createIssuetype, "type", "", "issue type id")
	createCmd.Flags().StringVar(&createSummary, "summary", "", "issue summary")
	createCmd.Flags().StringVar(&createDescription, "description", "", "issue description")
	createCmd.MarkFlagRequired("project")
	createCmd.MarkFlagRequired("type")
	createCmd.MarkFlagRequired("summary")

	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(versionCmd)
}

var issueKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-[1-9][0-9]*$`)

func validateIssueKey(key string) error {
	if !issueKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid issue key %q: must be in the format PROJECT-123", key)
	}
	return nil
}

func validateThreadTS(ts string) error {
	seconds := ts
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		seconds = ts[:i]
	}
	if _, err := strconv.ParseInt(seconds, 10, 64); err != nil || seconds == "" {
		return fmt.Errorf("invalid thread timestamp %q: must look like 1634665272.000200", ts)
	}
	return nil
}

func validateSummary(summary string) error {
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("summary cannot be empty")
	}
	if n := utf8.RuneCountInString(summary); n > maxSummaryLength {
		return fmt.Errorf("summary is %d characters: must be at most %d", n, maxSummaryLength)
	}
	return nil
}

// app bundles the wired collaborators of one CLI invocation.
type app struct {
	cfg     *config.Config
	chat    *slack.Client
	tracker *jira.Client
	engine  *sync.Engine
}

// setup loads the configuration and wires the clients and the sync engine.
func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	chat := slack.New(cfg.Slack.BotToken)
	tracker := jira.New(cfg.Jira.URL, cfg.Jira.User, cfg.Jira.Password)
	engine, err := sync.NewEngine(chat, tracker, cfg.CommentLimit)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, chat: chat, tracker: tracker, engine: engine}, nil
}

// synchronize runs one pass and posts the outcome back to the thread.
func (a *app) synchronize(ctx context.Context, issueKey, channelID, threadTS string, newIssue bool) error {
	identity, err := a.chat.AuthTest(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate with Slack: %w", err)
	}

	outcome, err := a.engine.Synchronize(ctx, issueKey, channelID, threadTS, newIssue, identity.UserID)
	if err != nil {
		return err
	}

	if err := a.chat.PostMessage(ctx, channelID, threadTS, outcome.Message); err != nil {
		logger.Warn("failed to post outcome to thread: %v", err)
	}
	fmt.Println(outcome.Message)
	return nil
}

func runAttach(cmd *cobra.Command, args []string) error {
	issueKey, channelID, threadTS := args[0], args[1], args[2]

	if err := validateIssueKey(issueKey); err != nil {
		return err
	}
	if err := validateThreadTS(threadTS); err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	issues, err := a.tracker.SearchByJQL(ctx, "issuekey = "+issueKey, 1)
	if err != nil {
		return fmt.Errorf("failed to look up issue %s: %w", issueKey, err)
	}
	if len(issues) == 0 {
		return fmt.Errorf("issue %s not found", issueKey)
	}

	return a.synchronize(ctx, issueKey, channelID, threadTS, false)
}

func runCreate(cmd *cobra.Command, args []string) error {
	channelID, threadTS := args[0], args[1]

	if err := validateThreadTS(threadTS); err != nil {
		return err
	}
	if err := validateSummary(createSummary); err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	created, err := a.tracker.CreateIssue(ctx, jira.IssueFields{
		ProjectKey:  createProject,
		IssuetypeID: createIssuetype,
		Summary:     createSummary,
		Description: createDescription,
	})
	if err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	for _, warning := range created.Warnings {
		logger.Warn("issue creation: %s", warning)
	}
	fmt.Printf("created issue %s\n", created.Key)

	// Watching the new issue is a courtesy, not a requirement of the sync.
	if err := a.tracker.AddWatcher(ctx, created.Key, a.cfg.Jira.User); err != nil {
		logger.Warn("failed to watch %s: %v", created.Key, err)
	}

	return a.synchronize(ctx, created.Key, channelID, threadTS, true)
}
