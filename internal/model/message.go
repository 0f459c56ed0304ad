// Package model holds the presentation-independent data types shared by the
// event decoder and the session aggregator: session identity, the ordered
// message log, and the pending-prompt/terminal metadata that ride along
// with it.
package model

import "time"

// Category classifies a SessionMessage for the UI's filtering/coloring.
type Category string

const (
	CategoryLifecycle Category = "lifecycle"
	CategoryLLMOutput Category = "llm_output"
	CategoryToolUse   Category = "tool_use"
	CategoryFileChange Category = "file_change"
	CategoryCommand   Category = "command"
	CategoryProgress  Category = "progress"
	CategoryError     Category = "error"
	CategoryLog       Category = "log"
	CategoryUserInput Category = "user_input"
)

// TodoStatus is the status of one TodoList entry.
type TodoStatus string

const (
	TodoCompleted  TodoStatus = "completed"
	TodoInProgress TodoStatus = "in_progress"
	TodoPending    TodoStatus = "pending"
	TodoBlocked    TodoStatus = "blocked"
	TodoUnknown    TodoStatus = "unknown"
)

// ParseTodoStatus maps a wire status string to TodoStatus, falling back to
// TodoUnknown for anything the wire contract doesn't enumerate.
func ParseTodoStatus(s string) TodoStatus {
	switch TodoStatus(s) {
	case TodoCompleted, TodoInProgress, TodoPending, TodoBlocked:
		return TodoStatus(s)
	default:
		return TodoUnknown
	}
}

// TodoItem is one entry in a TodoList body.
type TodoItem struct {
	Label  string
	Status TodoStatus
}

// FileChangeKind classifies one FileChanges entry.
type FileChangeKind string

const (
	FileAdded   FileChangeKind = "added"
	FileUpdated FileChangeKind = "updated"
	FileRemoved FileChangeKind = "removed"
	FileUnknown FileChangeKind = "unknown"
)

// ParseFileChangeKind maps a wire kind string to FileChangeKind.
func ParseFileChangeKind(s string) FileChangeKind {
	switch FileChangeKind(s) {
	case FileAdded, FileUpdated, FileRemoved:
		return FileChangeKind(s)
	default:
		return FileUnknown
	}
}

// FileChangeItem is one entry in a FileChanges body.
type FileChangeItem struct {
	Path string
	Kind FileChangeKind
}

// KeyValue is one entry in a KeyValuePairs body.
type KeyValue struct {
	Key   string
	Value string
}

// BodyKind discriminates the closed Body sum.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyText
	BodyMonospaced
	BodyTodoList
	BodyFileChanges
	BodyKeyValuePairs
)

// Body is the closed sum type backing SessionMessage.Body: exactly one of
// Text/Monospaced (carried in Text), TodoList (Todos), FileChanges
// (FileChanges), or KeyValuePairs (Pairs) is populated, selected by Kind.
type Body struct {
	Kind        BodyKind
	Text        string
	Todos       []TodoItem
	FileChanges []FileChangeItem
	Pairs       []KeyValue
}

// TextBody builds a Text body.
func TextBody(s string) Body { return Body{Kind: BodyText, Text: s} }

// MonospacedBody builds a Monospaced body.
func MonospacedBody(s string) Body { return Body{Kind: BodyMonospaced, Text: s} }

// TodoListBody builds a TodoList body.
func TodoListBody(items []TodoItem) Body { return Body{Kind: BodyTodoList, Todos: items} }

// FileChangesBody builds a FileChanges body.
func FileChangesBody(items []FileChangeItem) Body {
	return Body{Kind: BodyFileChanges, FileChanges: items}
}

// KeyValuePairsBody builds a KeyValuePairs body.
func KeyValuePairsBody(pairs []KeyValue) Body { return Body{Kind: BodyKeyValuePairs, Pairs: pairs} }

// SessionMessage is one entry in a Session's ordered message log.
type SessionMessage struct {
	Seq       int
	Title     string // empty means "not present" (title is optional on the wire)
	Body      Body
	Category  Category
	Timestamp time.Time // zero value means "not present"
}

// Terminal describes the pane a headless agent is running inside.
type Terminal struct {
	Type   string
	PaneID string
}

// Notification is the decoded body of POST /messages — a one-shot event
// from a process that isn't (yet, or no longer) connected over the
// WebSocket.
type Notification struct {
	Message       string
	WorkspacePath string
	Terminal      *Terminal
}

// Session is the aggregator's per-agent state. command == "" marks a
// notification-only session.
type Session struct {
	SessionID    string
	ConnectionID string
	ConnectedAt  time.Time
	IsActive     bool

	Command      string
	PlanID       *int
	PlanTitle    *string
	WorkspacePath *string
	GitRemote    *string
	Terminal     *Terminal

	Messages []SessionMessage

	PendingPrompt *PromptRequest

	UnreadNotification  bool
	NotificationMessage *string

	ForceScrollVersion int
}

// IsNotificationOnly reports whether this session was created purely from a
// POST /messages event.
func (s *Session) IsNotificationOnly() bool { return s.Command == "" }

// PromptResponseKind discriminates PromptResponseValue's typed union.
type PromptResponseKind int

const (
	PromptValueNone PromptResponseKind = iota
	PromptValueBool
	PromptValueInt
	PromptValueDouble
	PromptValueString
	PromptValueArray
	PromptValueObject
)

// PromptResponseValue is a typed union preserving the origin JSON type of a
// prompt default/choice value/response.
type PromptResponseValue struct {
	Kind   PromptResponseKind
	Bool   bool
	Int    int64
	Double float64
	Str    string
	Array  []PromptResponseValue
	Object map[string]PromptResponseValue
}

// PromptChoice is one selectable option in a PromptConfig.
type PromptChoice struct {
	Name            string
	Value           *PromptResponseValue
	Description     *string
	Checked         *bool
}

// PromptConfig describes an interactive prompt raised by a headless agent.
type PromptConfig struct {
	Message        string
	Default        *PromptResponseValue
	Choices        []PromptChoice
	PageSize       *int
	ValidationHint *string
	Command        *string
}

// PromptRequest is an outstanding interactive prompt pending a response —
// a session has at most one at a time.
type PromptRequest struct {
	RequestID string
	Type      string
	Config    PromptConfig
}
