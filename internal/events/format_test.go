package events

import (
	"strings"
	"testing"

	"github.com/timhq/tim-agent-core/internal/model"
)

func decode(t *testing.T, jsonStr string) *HeadlessMessage {
	t.Helper()
	hm, err := DecodeHeadlessMessage([]byte(jsonStr))
	if err != nil {
		t.Fatalf("DecodeHeadlessMessage: %v", err)
	}
	return hm
}

func TestDecodeSessionInfo(t *testing.T) {
	hm := decode(t, `{"type":"session_info","command":"claude","planId":7,"terminalPaneId":"pane-1","terminalType":"tmux"}`)
	if hm.Type != TypeSessionInfo {
		t.Fatalf("type = %v", hm.Type)
	}
	if hm.SessionInfo.Command != "claude" || *hm.SessionInfo.PlanID != 7 {
		t.Fatalf("session info = %+v", hm.SessionInfo)
	}
}

func TestDecodeUnknownEnvelopeType(t *testing.T) {
	_, err := DecodeHeadlessMessage([]byte(`{"type":"bogus"}`))
	if err != ErrUnknownEnvelope {
		t.Fatalf("err = %v, want ErrUnknownEnvelope", err)
	}
}

func TestFormatLogAndStdout(t *testing.T) {
	hm := decode(t, `{"type":"output","seq":1,"message":{"type":"error","args":["boom","now"]}}`)
	msg := FormatTunnelMessage(hm.Output.Seq, hm.Output.Message)
	if msg.Category != model.CategoryError || msg.Body.Text != "boom now" {
		t.Fatalf("msg = %+v", msg)
	}

	hm2 := decode(t, `{"type":"output","seq":2,"message":{"type":"stdout","data":"hi"}}`)
	msg2 := FormatTunnelMessage(hm2.Output.Seq, hm2.Output.Message)
	if msg2.Category != model.CategoryLog || msg2.Body.Text != "hi" {
		t.Fatalf("msg2 = %+v", msg2)
	}
}

func TestFormatStructuredLLMToolUse(t *testing.T) {
	hm := decode(t, `{"type":"output","seq":3,"message":{"type":"structured","message":{"type":"llm_tool_use","name":"Read","input":{"path":"a.go"}}}}`)
	msg := FormatTunnelMessage(hm.Output.Seq, hm.Output.Message)
	if msg.Title != "Invoke Tool: Read" {
		t.Fatalf("title = %q", msg.Title)
	}
	if msg.Category != model.CategoryToolUse {
		t.Fatalf("category = %v", msg.Category)
	}
	if !strings.Contains(msg.Body.Text, `"path":"a.go"`) {
		t.Fatalf("body = %q", msg.Body.Text)
	}
}

func TestFormatToolResultTruncatesExceptTask(t *testing.T) {
	long := strings.Repeat("line\n", 50)
	hm := decode(t, `{"type":"output","seq":4,"message":{"type":"structured","message":{"type":"llm_tool_result","name":"Bash","result":`+jsonQuote(long)+`}}}`)
	msg := FormatTunnelMessage(hm.Output.Seq, hm.Output.Message)
	if !strings.Contains(msg.Body.Text, "truncated") {
		t.Fatalf("expected truncation marker, got %q", msg.Body.Text)
	}

	hm2 := decode(t, `{"type":"output","seq":5,"message":{"type":"structured","message":{"type":"llm_tool_result","name":"Task","result":`+jsonQuote(long)+`}}}`)
	msg2 := FormatTunnelMessage(hm2.Output.Seq, hm2.Output.Message)
	if strings.Contains(msg2.Body.Text, "truncated") {
		t.Fatalf("Task results must not truncate, got %q", msg2.Body.Text)
	}
}

func TestFormatUnknownStructuredVariant(t *testing.T) {
	hm := decode(t, `{"type":"output","seq":6,"message":{"type":"structured","message":{"type":"something_new"}}}`)
	msg := FormatTunnelMessage(hm.Output.Seq, hm.Output.Message)
	if msg.Category != model.CategoryLog || msg.Body.Text != "Unknown message type: something_new" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestFormatTodoUpdate(t *testing.T) {
	hm := decode(t, `{"type":"output","seq":7,"message":{"type":"structured","message":{"type":"todo_update","todos":[{"label":"write tests","status":"in_progress"},{"label":"ship","status":"weird"}]}}}`)
	msg := FormatTunnelMessage(hm.Output.Seq, hm.Output.Message)
	if len(msg.Body.Todos) != 2 {
		t.Fatalf("todos = %+v", msg.Body.Todos)
	}
	if msg.Body.Todos[0].Status != model.TodoInProgress {
		t.Fatalf("status[0] = %v", msg.Body.Todos[0].Status)
	}
	if msg.Body.Todos[1].Status != model.TodoUnknown {
		t.Fatalf("status[1] = %v, want unknown", msg.Body.Todos[1].Status)
	}
}

func TestFormatCommandResultOmitsZeroExitCode(t *testing.T) {
	hm := decode(t, `{"type":"output","seq":8,"message":{"type":"structured","message":{"type":"command_result","command":"go test","exitCode":0,"stdout":"ok"}}}`)
	msg := FormatTunnelMessage(hm.Output.Seq, hm.Output.Message)
	if strings.Contains(msg.Body.Text, "Exit Code") {
		t.Fatalf("zero exit code should be omitted, got %q", msg.Body.Text)
	}

	hm2 := decode(t, `{"type":"output","seq":9,"message":{"type":"structured","message":{"type":"command_result","command":"go test","exitCode":1,"stderr":"boom"}}}`)
	msg2 := FormatTunnelMessage(hm2.Output.Seq, hm2.Output.Message)
	if !strings.Contains(msg2.Body.Text, "Exit Code: 1") {
		t.Fatalf("expected exit code in %q", msg2.Body.Text)
	}
}

func TestFormatTimestampParsing(t *testing.T) {
	hm := decode(t, `{"type":"output","seq":10,"message":{"type":"structured","message":{"type":"llm_thinking","text":"hmm","timestamp":"2024-01-02T03:04:05Z"}}}`)
	msg := FormatTunnelMessage(hm.Output.Seq, hm.Output.Message)
	if msg.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be parsed")
	}

	hm2 := decode(t, `{"type":"output","seq":11,"message":{"type":"structured","message":{"type":"llm_thinking","text":"hmm","timestamp":"2024-01-02T03:04:05.123456Z"}}}`)
	msg2 := FormatTunnelMessage(hm2.Output.Seq, hm2.Output.Message)
	if msg2.Timestamp.IsZero() {
		t.Fatal("expected fractional-second timestamp to be parsed")
	}
}

func TestCanonicalJSONStringIntegral(t *testing.T) {
	if got := canonicalJSONString([]byte("5")); got != "5" {
		t.Fatalf("got %q, want 5", got)
	}
	if got := canonicalJSONString([]byte("5.5")); got != "5.5" {
		t.Fatalf("got %q, want 5.5", got)
	}
	if got := canonicalJSONString([]byte("true")); got != "true" {
		t.Fatalf("got %q, want true", got)
	}
	if got := canonicalJSONString([]byte(`{"b":1,"a":2}`)); got != `{"a":2,"b":1}` {
		t.Fatalf("got %q, want sorted keys", got)
	}
}

func TestDecodePromptRequest(t *testing.T) {
	hm := decode(t, `{"type":"output","seq":12,"message":{"type":"structured","message":{"type":"prompt_request","requestId":"r1","promptType":"confirm","message":"proceed?","default":true,"choices":[{"name":"yes","value":true},{"name":"no","value":false}]}}}`)
	req, ok := DecodePromptRequest(hm.Output.Message.Message)
	if !ok {
		t.Fatal("expected prompt request decode")
	}
	if req.RequestID != "r1" || req.Type != "confirm" {
		t.Fatalf("req = %+v", req)
	}
	if req.Config.Default == nil || req.Config.Default.Kind != model.PromptValueBool || !req.Config.Default.Bool {
		t.Fatalf("default = %+v", req.Config.Default)
	}
	if len(req.Config.Choices) != 2 {
		t.Fatalf("choices = %+v", req.Config.Choices)
	}
}

func TestUserTerminalInputSource(t *testing.T) {
	hm := decode(t, `{"type":"output","seq":13,"message":{"type":"structured","message":{"type":"user_terminal_input","content":"ls -la","source":"gui"}}}`)
	if src := UserTerminalInputSource(hm.Output.Message.Message); src != "gui" {
		t.Fatalf("source = %q, want gui", src)
	}
}

func TestSessionMetadataTitleFromPlanDiscovery(t *testing.T) {
	hm := decode(t, `{"type":"output","seq":14,"message":{"type":"structured","message":{"type":"plan_discovery","planId":"42","title":"  Ship it  "}}}`)
	title, ok := SessionMetadataTitle(hm.Output.Message.Message)
	if !ok || title != "Ship it" {
		t.Fatalf("title = %q ok=%v", title, ok)
	}
}

func jsonQuote(s string) string {
	b := make([]byte, 0, len(s)+2)
	b = append(b, '"')
	for _, r := range s {
		if r == '\n' {
			b = append(b, '\\', 'n')
		} else {
			b = append(b, byte(r))
		}
	}
	b = append(b, '"')
	return string(b)
}
