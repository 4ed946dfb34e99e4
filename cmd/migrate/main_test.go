package main

import (
	"os"
	"strings"
	"testing"
)

func TestUpStatementsSplitsAndSkipsDown(t *testing.T) {
	content := `-- users
CREATE TABLE users (
    id text PRIMARY KEY
);

CREATE INDEX users_id_idx ON users (id);
-- +migrate Down
DROP TABLE users;
`
	got := upStatements(content)
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if !strings.HasPrefix(got[0], "CREATE TABLE users") || !strings.HasSuffix(got[0], ");") {
		t.Fatalf("unexpected first statement %q", got[0])
	}
	for _, stmt := range got {
		if strings.Contains(stmt, "DROP") {
			t.Fatalf("down section leaked into up statements: %q", stmt)
		}
	}
}

func TestUpStatementsKeepsUnterminatedTail(t *testing.T) {
	got := upStatements("SELECT 1;\nSELECT 2")
	if len(got) != 2 || got[1] != "SELECT 2" {
		t.Fatalf("unexpected statements %q", got)
	}
}

func TestInitialMigrationParses(t *testing.T) {
	content, err := os.ReadFile("../../migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	got := upStatements(string(content))
	var partialIndex bool
	for _, stmt := range got {
		if !strings.HasSuffix(stmt, ";") {
			t.Fatalf("statement not terminated: %q", stmt)
		}
		if strings.Contains(stmt, "advances_one_active_per_user") && strings.Contains(stmt, "WHERE status IN") {
			partialIndex = true
		}
	}
	if !partialIndex {
		t.Fatal("expected the one-active-advance partial index")
	}
}
