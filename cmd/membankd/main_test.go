package main

import "testing"

func TestRootCmd_Subcommands(t *testing.T) {
	want := []string{"init", "plan", "apply", "invoke", "serve"}
	for _, name := range want {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				if cmd.Short == "" {
					t.Errorf("%s command missing Short description", name)
				}
				break
			}
		}
		if !found {
			t.Errorf("%s command not registered on rootCmd", name)
		}
	}
}

func TestParseToolArgs(t *testing.T) {
	got, err := parseToolArgs([]string{"path=notes.md", "content=a=b"})
	if err != nil {
		t.Fatalf("parseToolArgs: %v", err)
	}
	if got["path"] != "notes.md" {
		t.Errorf("path = %q", got["path"])
	}
	// Cut splits on the first separator only.
	if got["content"] != "a=b" {
		t.Errorf("content = %q", got["content"])
	}

	if _, err := parseToolArgs([]string{"noseparator"}); err == nil {
		t.Error("expected error for argument without key=value form")
	}
	if _, err := parseToolArgs([]string{"=value"}); err == nil {
		t.Error("expected error for empty key")
	}
}
