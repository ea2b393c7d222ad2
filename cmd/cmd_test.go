package cmd

import (
	"testing"
)

func TestRootSubcommandsRegistered(t *testing.T) {
	want := []string{
		"add", "search", "recent", "popular", "stats",
		"autolink", "summarize", "suggest", "cleanup",
		"maintain", "serve", "health", "migrate", "version",
	}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestAddCmdFlags(t *testing.T) {
	cmd := newAddCmd()

	for _, name := range []string{"category", "importance", "type", "session", "source"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("add command missing --%s flag", name)
		}
	}

	if got := cmd.Flags().Lookup("importance").DefValue; got != "0.5" {
		t.Errorf("--importance default = %s, want 0.5", got)
	}
}

func TestRecentCmdFlags(t *testing.T) {
	cmd := newRecentCmd()

	hours := cmd.Flags().Lookup("hours")
	if hours == nil {
		t.Fatal("recent command missing --hours flag")
	}
	if hours.DefValue != "24" {
		t.Errorf("--hours default = %s, want 24", hours.DefValue)
	}
}

func TestSearchCmdRequiresQuery(t *testing.T) {
	cmd := newSearchCmd()
	if err := cmd.Args(cmd, []string{}); err == nil {
		t.Error("search with no args should fail validation")
	}
	if err := cmd.Args(cmd, []string{"query"}); err != nil {
		t.Errorf("search with one arg failed validation: %v", err)
	}
}
