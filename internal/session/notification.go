package session

import (
	"github.com/google/uuid"

	"github.com/timhq/tim-agent-core/internal/model"
)

// IngestNotification reconciles a POST /messages notification against
// existing sessions, or creates a notification-only session, always
// firing the OS notification.
func (a *Aggregator) IngestNotification(n model.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if match := a.findSessionForNotification(n); match != nil {
		match.NotificationMessage = &n.Message
		match.UnreadNotification = true
		a.notifier.Notify("Tim", n.Message)
		return
	}

	s := &model.Session{
		SessionID:           uuid.NewString(),
		ConnectionID:        "notif-" + uuid.NewString(),
		IsActive:            false,
		NotificationMessage: &n.Message,
		UnreadNotification:  true,
	}
	if n.Terminal != nil {
		s.Terminal = &model.Terminal{Type: n.Terminal.Type, PaneID: n.Terminal.PaneID}
	}
	if n.WorkspacePath != "" {
		s.WorkspacePath = &n.WorkspacePath
		if template := a.findWorkspaceTemplate(n.WorkspacePath); template != nil {
			s.PlanID = template.PlanID
			s.PlanTitle = template.PlanTitle
		}
	}

	a.sessions = append([]*model.Session{s}, a.sessions...)
	a.byID[s.SessionID] = s
	a.byConn[s.ConnectionID] = s

	a.notifier.Notify("Tim", n.Message)
}

// findSessionForNotification applies the notification-side matching rule:
// pane id first (never falling back to workspace), then workspace path,
// against any session (not just notification-only ones).
func (a *Aggregator) findSessionForNotification(n model.Notification) *model.Session {
	if n.Terminal != nil && n.Terminal.PaneID != "" {
		for _, s := range a.sessions {
			if s.Terminal != nil && s.Terminal.PaneID == n.Terminal.PaneID {
				return s
			}
		}
		return nil
	}
	if n.WorkspacePath != "" {
		for _, s := range a.sessions {
			if s.WorkspacePath != nil && *s.WorkspacePath == n.WorkspacePath {
				return s
			}
		}
	}
	return nil
}

func (a *Aggregator) findWorkspaceTemplate(workspacePath string) *model.Session {
	for _, s := range a.sessions {
		if s.WorkspacePath != nil && *s.WorkspacePath == workspacePath {
			return s
		}
	}
	return nil
}
