// Package session implements the session aggregation engine: the single
// owner of session state, reconciling notification-only sessions with
// later WebSocket sessions, buffering replays and out-of-order messages,
// tracking at most one pending prompt per session, and routing outgoing
// writes back through the registered send hook.
//
// All mutation is serialized behind one mutex rather than a channel-fed
// executor goroutine — simpler, and every method here already runs to
// completion without suspending.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timhq/tim-agent-core/internal/events"
	"github.com/timhq/tim-agent-core/internal/model"
	"github.com/timhq/tim-agent-core/internal/notify"
)

// SendHook delivers text to the agent behind connID. Installed once by
// the server after bind.
type SendHook func(connID string, text string) error

// ErrSessionNotActive is returned by SendUserInput/SendPromptResponse
// against a session whose WebSocket has disconnected.
var ErrSessionNotActive = errors.New("session: not active")

// ErrSessionNotFound is returned when an operation names an unknown
// session id.
var ErrSessionNotFound = errors.New("session: not found")

// ErrSessionActive is returned by DismissSession against a live session —
// only disconnected sessions can be dismissed.
var ErrSessionActive = errors.New("session: still active")

// Aggregator owns every Session and the buffers that support replay and
// out-of-order delivery.
type Aggregator struct {
	mu sync.Mutex

	sessions []*model.Session          // display order, newest first
	byID     map[string]*model.Session
	byConn   map[string]*model.Session

	pendingMessages map[string][]model.SessionMessage
	replayMessages  map[string][]model.SessionMessage
	replaying       map[string]bool

	selectedSessionID string

	sendHook SendHook
	notifier notify.Sink
}

// New builds an empty Aggregator. notifier must not be nil; use
// notify.NewLogSink(nil) for a sink that only logs.
func New(notifier notify.Sink) *Aggregator {
	return &Aggregator{
		byID:            make(map[string]*model.Session),
		byConn:          make(map[string]*model.Session),
		pendingMessages: make(map[string][]model.SessionMessage),
		replayMessages:  make(map[string][]model.SessionMessage),
		replaying:       make(map[string]bool),
		notifier:        notifier,
	}
}

// SetSendHook installs the outgoing-write callback, a closure the server
// registers once after it binds its listener.
func (a *Aggregator) SetSendHook(hook SendHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sendHook = hook
}

// Sessions returns a snapshot of the current display-order session list.
func (a *Aggregator) Sessions() []*model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*model.Session, len(a.sessions))
	copy(out, a.sessions)
	return out
}

// SelectedSessionID returns the currently selected session, or "" if none.
func (a *Aggregator) SelectedSessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedSessionID
}

// GetSession looks up a session by its stable id.
func (a *Aggregator) GetSession(sessionID string) (*model.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.byID[sessionID]
	return s, ok
}

func (a *Aggregator) selectIfNoneSelected(sessionID string) {
	if a.selectedSessionID == "" {
		a.selectedSessionID = sessionID
	}
}

func applyIdentity(s *model.Session, info events.SessionInfo) {
	s.Command = info.Command
	s.PlanID = info.PlanID
	s.PlanTitle = info.PlanTitle
	s.WorkspacePath = info.WorkspacePath
	s.GitRemote = info.GitRemote
	if info.TerminalPaneID != nil && *info.TerminalPaneID != "" {
		typ := "unknown"
		if info.TerminalType != nil && *info.TerminalType != "" {
			typ = *info.TerminalType
		}
		s.Terminal = &model.Terminal{Type: typ, PaneID: *info.TerminalPaneID}
	}
}

// AddSession registers connectionID's session_info, reconciling it against
// a matching notification-only session if one exists.
func (a *Aggregator) AddSession(connectionID string, info events.SessionInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.byConn[connectionID]; ok {
		applyIdentity(existing, info)
		return
	}

	if match := a.reconcileForAddSession(info); match != nil {
		oldConnID := match.ConnectionID
		delete(a.byConn, oldConnID)

		match.ConnectionID = connectionID
		applyIdentity(match, info)
		match.IsActive = true
		a.byConn[connectionID] = match

		if pending, ok := a.pendingMessages[connectionID]; ok {
			match.Messages = append(match.Messages, pending...)
			delete(a.pendingMessages, connectionID)
		}
		a.selectIfNoneSelected(match.SessionID)
		return
	}

	s := &model.Session{
		SessionID:    uuid.NewString(),
		ConnectionID: connectionID,
		ConnectedAt:  time.Now(),
		IsActive:     true,
	}
	applyIdentity(s, info)

	if pending, ok := a.pendingMessages[connectionID]; ok {
		s.Messages = append(s.Messages, pending...)
		delete(a.pendingMessages, connectionID)
	}

	a.sessions = append([]*model.Session{s}, a.sessions...)
	a.byID[s.SessionID] = s
	a.byConn[connectionID] = s
	a.selectIfNoneSelected(s.SessionID)
}

// reconcileForAddSession applies the add_session-side matching rule: pane
// id first, strict (no workspace fallback when a pane id is present);
// workspace path otherwise. Caller holds a.mu.
func (a *Aggregator) reconcileForAddSession(info events.SessionInfo) *model.Session {
	if info.TerminalPaneID != nil && *info.TerminalPaneID != "" {
		for _, s := range a.sessions {
			if s.Command == "" && s.Terminal != nil && s.Terminal.PaneID == *info.TerminalPaneID {
				return s
			}
		}
		return nil
	}
	if info.WorkspacePath != nil && *info.WorkspacePath != "" {
		for _, s := range a.sessions {
			if s.Command == "" && s.WorkspacePath != nil && *s.WorkspacePath == *info.WorkspacePath {
				return s
			}
		}
	}
	return nil
}

// AppendMessage routes one formatted message to its session — or, if the
// connection is replaying or not yet matched to a session, to the
// appropriate buffer.
func (a *Aggregator) AppendMessage(connectionID string, msg model.SessionMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.replaying[connectionID] {
		a.replayMessages[connectionID] = append(a.replayMessages[connectionID], msg)
		return
	}
	if s, ok := a.byConn[connectionID]; ok {
		s.Messages = append(s.Messages, msg)
		return
	}
	a.pendingMessages[connectionID] = append(a.pendingMessages[connectionID], msg)
}

// StartReplay marks connectionID as mid-replay; AppendMessage buffers
// rather than appends until EndReplay.
func (a *Aggregator) StartReplay(connectionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replaying[connectionID] = true
}

// EndReplay drains buffered replay messages into the session (bumping
// force_scroll_version) or, if the session doesn't exist yet, into the
// pending-message queue.
func (a *Aggregator) EndReplay(connectionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.replaying, connectionID)
	buffered := a.replayMessages[connectionID]
	delete(a.replayMessages, connectionID)
	if len(buffered) == 0 {
		return
	}

	if s, ok := a.byConn[connectionID]; ok {
		s.Messages = append(s.Messages, buffered...)
		s.ForceScrollVersion++
		return
	}
	a.pendingMessages[connectionID] = append(a.pendingMessages[connectionID], buffered...)
}

// SetActivePrompt records the outstanding prompt for connectionID. A
// no-op while the connection is replaying or unknown.
func (a *Aggregator) SetActivePrompt(connectionID string, prompt *model.PromptRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.replaying[connectionID] {
		return
	}
	if s, ok := a.byConn[connectionID]; ok {
		s.PendingPrompt = prompt
	}
}

// ClearActivePrompt clears connectionID's pending prompt, but only if
// requestID matches the outstanding one.
func (a *Aggregator) ClearActivePrompt(connectionID, requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.byConn[connectionID]
	if !ok || s.PendingPrompt == nil || s.PendingPrompt.RequestID != requestID {
		return
	}
	s.PendingPrompt = nil
}

// SendUserInput serializes the outgoing envelope, hands it to the send
// hook, and appends a local echo message.
func (a *Aggregator) SendUserInput(sessionID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.byID[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !s.IsActive {
		return ErrSessionNotActive
	}
	if a.sendHook == nil {
		return fmt.Errorf("session: no send hook installed")
	}
	if err := a.sendHook(s.ConnectionID, encodeUserInput(text)); err != nil {
		return err
	}

	s.Messages = append(s.Messages, model.SessionMessage{
		Title:    "You",
		Body:     model.TextBody(text),
		Category: model.CategoryUserInput,
	})
	return nil
}

// SendPromptResponse serializes and sends a response to an outstanding
// prompt on sessionID's connection.
func (a *Aggregator) SendPromptResponse(sessionID, requestID string, value model.PromptResponseValue) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.byID[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !s.IsActive {
		return ErrSessionNotActive
	}
	if a.sendHook == nil {
		return fmt.Errorf("session: no send hook installed")
	}
	return a.sendHook(s.ConnectionID, encodePromptResponse(requestID, value))
}

// MarkDisconnected marks connectionID's session inactive, clears its
// pending prompt, and fires a disconnect notification.
func (a *Aggregator) MarkDisconnected(connectionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.pendingMessages, connectionID)
	delete(a.replayMessages, connectionID)
	delete(a.replaying, connectionID)

	s, ok := a.byConn[connectionID]
	if !ok {
		return
	}
	s.IsActive = false
	s.PendingPrompt = nil
	msg := "Agent session disconnected"
	s.NotificationMessage = &msg
	s.UnreadNotification = true
	a.notifier.Notify("Tim", msg)
}

// DismissSession removes a disconnected session, refusing to remove one
// that's still active.
func (a *Aggregator) DismissSession(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.byID[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.IsActive {
		return ErrSessionActive
	}
	a.removeSession(s)
	return nil
}

// DismissAllDisconnected removes every session that is no longer active.
func (a *Aggregator) DismissAllDisconnected() {
	a.mu.Lock()
	defer a.mu.Unlock()

	remaining := make([]*model.Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		if s.IsActive {
			remaining = append(remaining, s)
			continue
		}
		delete(a.byID, s.SessionID)
		delete(a.byConn, s.ConnectionID)
		if a.selectedSessionID == s.SessionID {
			a.selectedSessionID = ""
		}
	}
	a.sessions = remaining
}

func (a *Aggregator) removeSession(s *model.Session) {
	delete(a.byID, s.SessionID)
	delete(a.byConn, s.ConnectionID)
	if a.selectedSessionID == s.SessionID {
		a.selectedSessionID = ""
	}
	for i, cand := range a.sessions {
		if cand == s {
			a.sessions = append(a.sessions[:i], a.sessions[i+1:]...)
			break
		}
	}
}

// MarkNotificationRead clears sessionID's unread-notification flag.
func (a *Aggregator) MarkNotificationRead(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.byID[sessionID]; ok {
		s.UnreadNotification = false
	}
}

// HandleListItemTap selects the session and marks its notification read.
func (a *Aggregator) HandleListItemTap(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.byID[sessionID]; ok {
		a.selectedSessionID = sessionID
		s.UnreadNotification = false
	}
}

// HandleTerminalIconTap clears sessionID's unread-notification flag from
// a tap on its terminal icon rather than the list row itself.
func (a *Aggregator) HandleTerminalIconTap(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.byID[sessionID]; ok {
		s.UnreadNotification = false
	}
}
