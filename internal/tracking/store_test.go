package tracking

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestDeriveDisplayStatus(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * 24 * time.Hour)
	stale := now.Add(-10 * 24 * time.Hour)

	cases := []struct {
		name      string
		status    PlanStatus
		unresolved bool
		updatedAt *time.Time
		want      PlanDisplayStatus
	}{
		{"pending clean", PlanPending, false, nil, DisplayPending},
		{"pending blocked", PlanPending, true, nil, DisplayBlocked},
		{"in progress", PlanInProgress, true, nil, DisplayInProgress},
		{"done recent", PlanDone, false, &recent, DisplayRecentlyDone},
		{"done stale", PlanDone, false, &stale, DisplayDone},
		{"cancelled", PlanCancelled, false, nil, DisplayCancelled},
		{"deferred", PlanDeferred, false, nil, DisplayDeferred},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := deriveDisplayStatus(c.status, c.unresolved, c.updatedAt, now)
			if got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestSelectionUnchanged(t *testing.T) {
	a, b := int64(1), int64(1)
	if !selectionUnchanged(&a, &b) {
		t.Error("equal pointers should be unchanged")
	}
	if selectionUnchanged(nil, &b) {
		t.Error("nil vs set should be changed")
	}
	c := int64(2)
	if selectionUnchanged(&a, &c) {
		t.Error("differing values should be changed")
	}
	if !selectionUnchanged(nil, nil) {
		t.Error("both nil should be unchanged")
	}
}

func seedDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE project (id INTEGER PRIMARY KEY, repository_id INTEGER, remote_url TEXT, last_git_root TEXT, remote_label TEXT);
	CREATE TABLE workspace (id INTEGER PRIMARY KEY, project_id INTEGER, workspace_path TEXT, branch TEXT, name TEXT, plan_id INTEGER, plan_title TEXT, is_primary INTEGER, updated_at TEXT);
	CREATE TABLE workspace_lock (workspace_id INTEGER PRIMARY KEY);
	CREATE TABLE plan (uuid TEXT PRIMARY KEY, project_id INTEGER, plan_id INTEGER, title TEXT, goal TEXT, status TEXT, priority INTEGER, parent_uuid TEXT, epic INTEGER, filename TEXT, created_at TEXT, updated_at TEXT, branch TEXT);
	CREATE TABLE plan_dependency (plan_uuid TEXT, depends_on_uuid TEXT);

	INSERT INTO project (id, repository_id, remote_url, last_git_root, remote_label) VALUES (1, NULL, 'git@x', '/repo', 'repo');
	INSERT INTO workspace (id, project_id, workspace_path, branch, name, plan_id, plan_title, is_primary, updated_at)
		VALUES (1, 1, '/repo', 'main', 'primary', NULL, NULL, 1, '2026-07-01T00:00:00Z');
	INSERT INTO plan (uuid, project_id, plan_id, title, goal, status, priority, parent_uuid, epic, filename, created_at, updated_at, branch)
		VALUES ('p1', 1, 1, 'First plan', 'ship it', 'pending', 1, NULL, 0, 'p1.md', '2026-07-01T00:00:00Z', '2026-07-01T00:00:00Z', 'main');
	INSERT INTO plan (uuid, project_id, plan_id, title, goal, status, priority, parent_uuid, epic, filename, created_at, updated_at, branch)
		VALUES ('p2', 1, 2, 'Second plan', 'depends on first', 'pending', 1, NULL, 0, 'p2.md', '2026-07-01T00:00:00Z', '2026-07-01T00:00:00Z', 'main');
	INSERT INTO plan_dependency (plan_uuid, depends_on_uuid) VALUES ('p2', 'p1');
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
}

func TestRefreshProjectsAndPlans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.db")
	seedDB(t, path)

	s := New(path, nil, 0)
	projectID := int64(1)
	s.mu.Lock()
	s.projection.SelectedProjectID = &projectID
	s.mu.Unlock()

	s.Refresh()

	snap := s.Snapshot()
	if snap.LoadState != LoadStateLoaded {
		t.Fatalf("load state = %v, error = %q", snap.LoadState, snap.LoadError)
	}
	if len(snap.Projects) != 1 || snap.Projects[0].RemoteLabel == nil || *snap.Projects[0].RemoteLabel != "repo" {
		t.Fatalf("projects = %+v", snap.Projects)
	}
	if len(snap.Workspaces) != 1 || !snap.Workspaces[0].IsPrimary {
		t.Fatalf("workspaces = %+v", snap.Workspaces)
	}
	if len(snap.Plans) != 2 {
		t.Fatalf("plans = %d, want 2", len(snap.Plans))
	}

	var p2 *Plan
	for i := range snap.Plans {
		if snap.Plans[i].UUID == "p2" {
			p2 = &snap.Plans[i]
		}
	}
	if p2 == nil {
		t.Fatal("plan p2 missing")
	}
	if !p2.HasUnresolvedDependency || p2.DisplayStatus != DisplayBlocked {
		t.Fatalf("p2 = %+v", p2)
	}
}

func TestRefreshDiscardsOnSelectionChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.db")
	seedDB(t, path)

	s := New(path, nil, 0)
	projectID := int64(1)
	s.mu.Lock()
	s.projection.SelectedProjectID = &projectID
	s.mu.Unlock()

	// Simulate the selection changing to a different (non-existent)
	// project between fetch start and commit by calling refreshOnce
	// directly after mutating selection — refreshOnce captures the
	// selection at its own start, so flip it again right after capture
	// by racing isn't deterministic from a test; instead verify the
	// guard logic directly: a refresh captured for project 1 must not
	// commit if selection has since moved to project 2.
	s.refreshOnce()
	if s.Snapshot().LoadState != LoadStateLoaded {
		t.Fatalf("expected initial load to succeed")
	}

	otherID := int64(2)
	s.mu.Lock()
	s.projection.Plans = nil
	s.projection.SelectedProjectID = &otherID
	s.mu.Unlock()

	// A refresh that was captured against project 1 would find the
	// selection has moved on commit and discard its plans/workspaces.
	if selectionUnchanged(s.Snapshot().SelectedProjectID, &projectID) {
		t.Fatal("selection should be reported as changed")
	}
}
