package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jiraph/jiraph/internal/jira"
)

func TestValidateIssueKey(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		wantErr     bool
		errContains string
	}{
		{
			name: "valid key",
			key:  "PROJ-123",
		},
		{
			name: "valid single letter project",
			key:  "X-1",
		},
		{
			name: "valid project with digits",
			key:  "OPS2-42",
		},
		{
			name:        "missing number",
			key:         "PROJ-",
			wantErr:     true,
			errContains: "must be in the format PROJECT-123",
		},
		{
			name:        "missing dash",
			key:         "PROJ123",
			wantErr:     true,
			errContains: "must be in the format PROJECT-123",
		},
		{
			name:        "lowercase project",
			key:         "proj-123",
			wantErr:     true,
			errContains: "must be in the format PROJECT-123",
		},
		{
			name:        "zero issue number",
			key:         "PROJ-0",
			wantErr:     true,
			errContains: "must be in the format PROJECT-123",
		},
		{
			name:        "empty string",
			key:         "",
			wantErr:     true,
			errContains: "must be in the format PROJECT-123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIssueKey(tt.key)

			if tt.wantErr {
				if err == nil {
					t.Errorf("validateIssueKey(%q) expected error, got nil", tt.key)
					return
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("validateIssueKey(%q) error = %q, want error containing %q", tt.key, err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Errorf("validateIssueKey(%q) unexpected error: %v", tt.key, err)
			}
		})
	}
}

func TestValidateThreadTS(t *testing.T) {
	tests := []struct {
		name    string
		ts      string
		wantErr bool
	}{
		{name: "valid with fraction", ts: "1634665272.000200"},
		{name: "valid seconds only", ts: "1634665272"},
		{name: "invalid letters", ts: "not-a-ts", wantErr: true},
		{name: "invalid empty", ts: "", wantErr: true},
		{name: "invalid leading dot", ts: ".000200", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateThreadTS(tt.ts)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateThreadTS(%q) error = %v, wantErr %v", tt.ts, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSummary(t *testing.T) {
	tests := []struct {
		name    string
		summary string
		wantErr bool
	}{
		{name: "valid", summary: "crash on startup"},
		{name: "valid at the cap", summary: strings.Repeat("a", 255)},
		{name: "invalid empty", summary: "", wantErr: true},
		{name: "invalid whitespace only", summary: "   ", wantErr: true},
		{name: "invalid past the cap", summary: strings.Repeat("a", 256), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSummary(tt.summary)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSummary() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSummaryCountsRunes(t *testing.T) {
	// 255 multibyte runes are within the cap even though the byte count
	// is far beyond it.
	summary := strings.Repeat("字", 255)
	if err := validateSummary(summary); err != nil {
		t.Errorf("validateSummary() unexpected error: %v", err)
	}
}

// Test CLI argument validation through cobra

func TestAttachCmd_RequiresThreeArgs(t *testing.T) {
	rootCmd.SetArgs([]string{"attach", "PROJ-1", "C042"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("attach command should fail with two arguments")
	}
}

func TestAttachCmd_RejectsBadIssueKey(t *testing.T) {
	rootCmd.SetArgs([]string{"attach", "not-a-key", "C042", "1634665272.000200"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("attach command should fail with a malformed issue key")
	}
	if !strings.Contains(err.Error(), "issue key") {
		t.Errorf("error = %v, want an issue key validation failure", err)
	}
}

func TestAttachCmd_UnknownIssue(t *testing.T) {
	trackerSrv := jira.NewMockServer("bot")
	defer trackerSrv.Close()
	trackerSrv.SetComments("PROJ-1")

	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("JIRA_URL", trackerSrv.URL)
	t.Setenv("JIRA_USER", "bot")
	t.Setenv("JIRA_PASS", "secret")

	rootCmd.SetArgs([]string{"attach", "PROJ-404", "C042", "1634665272.000200"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("attach command should fail for an issue the tracker does not know")
	}
	if !strings.Contains(err.Error(), "PROJ-404 not found") {
		t.Errorf("error = %v, want an issue-not-found failure", err)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out.String(), "jiraph "+version) {
		t.Errorf("output = %q, want the version line", out.String())
	}
}

func TestCreateCmd_RequiresSummaryFlag(t *testing.T) {
	rootCmd.SetArgs([]string{"create", "C042", "1634665272.000200", "--project", "PROJ", "--type", "10001"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("create command should fail without --summary")
	}
}

func TestCreateCmd_RejectsOneArg(t *testing.T) {
	rootCmd.SetArgs([]string{"create", "C042"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("create command should fail with one argument")
	}
}
