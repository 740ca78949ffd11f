package server

import "testing"

func TestPathAllowed(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"workspace/notes.md", true},
		{"memory/2026-07-30.md", true},
		{"skills/deploy/SKILL.md", true},
		{"knowledge/runbook.md", true},
		{"SKILLS_SNAPSHOT.md", true},
		{"config.json", false},
		{"storage/audit/tool_audit.jsonl", false},
		{"../../etc/passwd", false},
		{"", false},
	}
	for _, c := range cases {
		if got := pathAllowed(c.path); got != c.want {
			t.Errorf("pathAllowed(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}
