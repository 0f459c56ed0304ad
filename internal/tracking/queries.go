package tracking

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// openReadOnlyConn opens a fresh connection in its own *sql.DB against
// path, configured for a read-only projection: busy_timeout=5000ms,
// PRAGMA locking_mode=NORMAL, PRAGMA query_only=ON. Callers must Close it.
func openReadOnlyConn(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tracking db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA locking_mode=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set locking_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set query_only: %w", err)
	}
	return db, nil
}

func fetchProjects(ctx context.Context, db *sql.DB) ([]Project, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, repository_id, remote_url, last_git_root, remote_label
		FROM project ORDER BY remote_label, last_git_root, id`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.RepositoryID, &p.RemoteURL, &p.LastGitRoot, &p.RemoteLabel); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func fetchWorkspaces(ctx context.Context, db *sql.DB, projectID int64) ([]Workspace, error) {
	rows, err := db.QueryContext(ctx, `SELECT w.id, w.project_id, w.workspace_path, w.branch, w.name,
			w.plan_id, w.plan_title, w.is_primary, w.updated_at,
			CASE WHEN wl.workspace_id IS NOT NULL THEN 1 ELSE 0 END AS is_locked
		FROM workspace w
		LEFT JOIN workspace_lock wl ON wl.workspace_id = w.id
		WHERE w.project_id = ?
		ORDER BY w.is_primary DESC, w.name, w.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query workspaces: %w", err)
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var w Workspace
		var isLocked int
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.WorkspacePath, &w.Branch, &w.Name,
			&w.PlanID, &w.PlanTitle, &w.IsPrimary, &w.UpdatedAt, &isLocked); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		w.IsLocked = isLocked != 0
		out = append(out, w)
	}
	return out, rows.Err()
}

func fetchPlans(ctx context.Context, db *sql.DB, projectID int64) ([]Plan, error) {
	rows, err := db.QueryContext(ctx, `SELECT uuid, project_id, plan_id, title, goal, status, priority,
			parent_uuid, epic, filename, created_at, updated_at, branch
		FROM plan WHERE project_id = ? ORDER BY plan_id DESC, updated_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		var p Plan
		var status string
		var isEpic int
		if err := rows.Scan(&p.UUID, &p.ProjectID, &p.PlanID, &p.Title, &p.Goal, &status, &p.Priority,
			&p.ParentUUID, &isEpic, &p.Filename, &p.CreatedAt, &p.UpdatedAt, &p.Branch); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		p.Status = PlanStatus(status)
		p.IsEpic = isEpic != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func fetchDependencyStatus(ctx context.Context, db *sql.DB, projectID int64) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT pd.plan_uuid, MAX(CASE WHEN p2.status != 'done' THEN 1 ELSE 0 END)
		FROM plan_dependency pd
		JOIN plan p2 ON pd.depends_on_uuid = p2.uuid
		WHERE pd.plan_uuid IN (SELECT uuid FROM plan WHERE project_id = ?)
		GROUP BY pd.plan_uuid`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query dependency status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var uuid string
		var hasUnresolved int
		if err := rows.Scan(&uuid, &hasUnresolved); err != nil {
			return nil, fmt.Errorf("scan dependency status: %w", err)
		}
		out[uuid] = hasUnresolved != 0
	}
	return out, rows.Err()
}
