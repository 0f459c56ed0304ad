// Package tracking implements the read-only tracking store: a periodic,
// selection-safe SQLite projection of projects, workspaces, and plans.
package tracking

import "time"

// Project mirrors one row of the project table.
type Project struct {
	ID           int64
	RepositoryID *int64
	RemoteURL    *string
	LastGitRoot  *string
	RemoteLabel  *string
}

// Workspace mirrors one row of the workspace table, left-joined against
// workspace_lock.
type Workspace struct {
	ID            int64
	ProjectID     int64
	WorkspacePath *string
	Branch        *string
	Name          *string
	PlanID        *int64
	PlanTitle     *string
	IsPrimary     bool
	IsLocked      bool
	UpdatedAt     *time.Time
}

// PlanStatus is a plan's raw, stored status.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in_progress"
	PlanDone       PlanStatus = "done"
	PlanCancelled  PlanStatus = "cancelled"
	PlanDeferred   PlanStatus = "deferred"
)

// PlanDisplayStatus is the UI-facing status derived from PlanStatus plus
// dependency/recency information.
type PlanDisplayStatus string

const (
	DisplayPending      PlanDisplayStatus = "pending"
	DisplayInProgress   PlanDisplayStatus = "in_progress"
	DisplayBlocked      PlanDisplayStatus = "blocked"
	DisplayRecentlyDone PlanDisplayStatus = "recently_done"
	DisplayDone         PlanDisplayStatus = "done"
	DisplayCancelled    PlanDisplayStatus = "cancelled"
	DisplayDeferred     PlanDisplayStatus = "deferred"
)

// Plan mirrors one row of the plan table.
type Plan struct {
	UUID       string
	ProjectID  int64
	PlanID     *int64
	Title      *string
	Goal       *string
	Status     PlanStatus
	Priority   *int64
	ParentUUID *string
	IsEpic     bool
	Filename   *string
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
	Branch     *string

	HasUnresolvedDependency bool
	DisplayStatus           PlanDisplayStatus
}

const recentlyDoneWindow = 7 * 24 * time.Hour

// deriveDisplayStatus derives the UI-facing status from a plan's raw
// status, dependency resolution, and recency.
func deriveDisplayStatus(status PlanStatus, hasUnresolved bool, updatedAt *time.Time, now time.Time) PlanDisplayStatus {
	switch status {
	case PlanPending:
		if hasUnresolved {
			return DisplayBlocked
		}
		return DisplayPending
	case PlanInProgress:
		return DisplayInProgress
	case PlanDone:
		if updatedAt != nil && !updatedAt.Before(now.Add(-recentlyDoneWindow)) {
			return DisplayRecentlyDone
		}
		return DisplayDone
	case PlanCancelled:
		return DisplayCancelled
	case PlanDeferred:
		return DisplayDeferred
	default:
		return DisplayPending
	}
}

// DefaultFilters is the default set of display statuses shown.
func DefaultFilters() map[PlanDisplayStatus]bool {
	return map[PlanDisplayStatus]bool{
		DisplayPending:      true,
		DisplayInProgress:   true,
		DisplayBlocked:      true,
		DisplayRecentlyDone: true,
	}
}

// LoadState describes the projection's freshness.
type LoadState int

const (
	LoadStateIdle LoadState = iota
	LoadStateLoaded
	LoadStateError
)

// Projection is the in-memory snapshot the refresh loop maintains.
type Projection struct {
	SelectedProjectID *int64
	Projects          []Project
	Workspaces        []Workspace
	Plans             []Plan
	LoadState         LoadState
	LoadError         string
}
