package session

import (
	"fmt"

	"github.com/timhq/tim-agent-core/internal/events"
)

// HandleOutput is the composition point between the event decoder and the
// aggregator: it formats one decoded "output" envelope into a
// SessionMessage and applies every aggregator-side effect the variant
// implies (echo suppression, pending prompts, notification/session-
// metadata side channels).
func (a *Aggregator) HandleOutput(connectionID string, out events.Output) {
	tm := out.Message

	if tm.Type == "structured" && tm.Message != nil {
		switch tm.Message.Type {
		case "user_terminal_input":
			if events.UserTerminalInputSource(tm.Message) == "gui" {
				// Local echo already appended by SendUserInput.
				return
			}
		case "input_required":
			a.IngestInputRequired(connectionID, tm.Message)
		case "plan_discovery", "execution_summary":
			a.IngestSessionMetadata(connectionID, tm.Message)
		case "prompt_request":
			if req, ok := events.DecodePromptRequest(tm.Message); ok {
				a.SetActivePrompt(connectionID, req)
			}
		case "prompt_answered":
			if requestID, ok := events.PromptAnsweredRequestID(tm.Message); ok {
				a.ClearActivePrompt(connectionID, requestID)
			}
		}
	}

	a.AppendMessage(connectionID, events.FormatTunnelMessage(out.Seq, tm))
}

// IngestInputRequired raises a notification banner for the input_required
// variant on connectionID's session.
func (a *Aggregator) IngestInputRequired(connectionID string, p *events.StructuredMessagePayload) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.byConn[connectionID]
	if !ok {
		return
	}
	prompt := events.InputRequiredText(p)
	msg := "Input required"
	if prompt != "" {
		msg = fmt.Sprintf("Input required: %s", prompt)
	}
	s.NotificationMessage = &msg
	s.UnreadNotification = true
	a.notifier.Notify("Tim", msg)
}

// IngestSessionMetadata updates connectionID's session plan title from a
// plan_discovery or execution_summary variant.
func (a *Aggregator) IngestSessionMetadata(connectionID string, p *events.StructuredMessagePayload) {
	title, ok := events.SessionMetadataTitle(p)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.byConn[connectionID]; ok {
		s.PlanTitle = &title
	}
}
