package events

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/timhq/tim-agent-core/internal/model"
)

const truncateLinesLimit = 40

// truncateLines keeps the first 40 lines, appending a truncation marker
// when the original had more.
func truncateLines(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= truncateLinesLimit {
		return text
	}
	kept := lines[:truncateLinesLimit]
	truncated := len(lines) - truncateLinesLimit
	return strings.Join(kept, "\n") + fmt.Sprintf("\n... (%d lines truncated)", truncated)
}

// canonicalJSONString renders arbitrary JSON as a canonical string:
// integral numbers below 10^15 lose their decimal point, booleans render
// as true/false, arrays/objects render as canonical JSON with sorted
// object keys.
func canonicalJSONString(raw json.RawMessage) string {
	if raw == nil || string(raw) == "null" {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return canonicalValueString(v)
}

func canonicalValueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case nil:
		return "null"
	default:
		data, err := canonicalMarshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// canonicalMarshal re-encodes v with object keys sorted, recursively.
func canonicalMarshal(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			vb, err := canonicalMarshal(t[k])
			if err != nil {
				return nil, err
			}
			b.Write(vb)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			eb, err := canonicalMarshal(e)
			if err != nil {
				return nil, err
			}
			b.Write(eb)
		}
		b.WriteByte(']')
		return []byte(b.String()), nil
	default:
		return json.Marshal(t)
	}
}

// FormatTunnelMessage turns a decoded TunnelMessage into a SessionMessage.
// seq is the wire sequence number from the enclosing output envelope,
// preserved verbatim.
func FormatTunnelMessage(seq int, tm TunnelMessage) model.SessionMessage {
	switch tm.Type {
	case "log", "error", "warn", "debug":
		category := model.CategoryLog
		if tm.Type == "error" || tm.Type == "warn" {
			category = model.CategoryError
		}
		return model.SessionMessage{
			Seq:      seq,
			Body:     model.TextBody(strings.Join(tm.Args, " ")),
			Category: category,
		}

	case "stdout", "stderr":
		category := model.CategoryLog
		if tm.Type == "stderr" {
			category = model.CategoryError
		}
		return model.SessionMessage{
			Seq:      seq,
			Body:     model.TextBody(tm.Data),
			Category: category,
		}

	case "structured":
		if tm.Message == nil {
			return model.SessionMessage{Seq: seq, Body: model.TextBody("Unknown message type: "), Category: model.CategoryLog}
		}
		return formatStructured(seq, tm.Message)

	default:
		return model.SessionMessage{
			Seq:      seq,
			Body:     model.TextBody(fmt.Sprintf("Unknown message type: %s", tm.Type)),
			Category: model.CategoryLog,
		}
	}
}

func formatStructured(seq int, p *StructuredMessagePayload) model.SessionMessage {
	msg := formatVariant(seq, p)
	if p.Timestamp != nil {
		msg.Timestamp = *p.Timestamp
	}
	return msg
}

func formatVariant(seq int, p *StructuredMessagePayload) model.SessionMessage {
	switch p.Type {
	case "agent_session_start":
		pairs := []model.KeyValue{}
		if v, ok := p.stringField("executor"); ok {
			pairs = append(pairs, model.KeyValue{Key: "Executor", Value: v})
		}
		if v, ok := p.stringField("mode"); ok {
			pairs = append(pairs, model.KeyValue{Key: "Mode", Value: v})
		}
		if raw, ok := p.rawField("planId"); ok {
			pairs = append(pairs, model.KeyValue{Key: "Plan ID", Value: canonicalJSONString(raw)})
		}
		return model.SessionMessage{Seq: seq, Title: "Starting", Body: model.KeyValuePairsBody(pairs), Category: model.CategoryLifecycle}

	case "agent_session_end":
		pairs := []model.KeyValue{}
		if raw, ok := p.rawField("success"); ok {
			pairs = append(pairs, model.KeyValue{Key: "Success", Value: canonicalJSONString(raw)})
		}
		if raw, ok := p.rawField("duration"); ok {
			pairs = append(pairs, model.KeyValue{Key: "Duration", Value: canonicalJSONString(raw)})
		}
		if raw, ok := p.rawField("cost"); ok {
			pairs = append(pairs, model.KeyValue{Key: "Cost", Value: canonicalJSONString(raw)})
		}
		if raw, ok := p.rawField("turns"); ok {
			pairs = append(pairs, model.KeyValue{Key: "Turns", Value: canonicalJSONString(raw)})
		}
		if v, ok := p.stringField("summary"); ok {
			pairs = append(pairs, model.KeyValue{Key: "Summary", Value: v})
		}
		return model.SessionMessage{Seq: seq, Title: "Done", Body: model.KeyValuePairsBody(pairs), Category: model.CategoryLifecycle}

	case "agent_iteration_start":
		var n int
		p.field("iteration", &n)
		title, _ := p.stringField("taskTitle")
		desc, _ := p.stringField("taskDescription")
		text := strings.TrimSpace(strings.TrimSpace(title) + "\n" + strings.TrimSpace(desc))
		var msgBody model.Body
		if text != "" {
			msgBody = model.TextBody(text)
		}
		return model.SessionMessage{Seq: seq, Title: fmt.Sprintf("Iteration %d", n), Body: msgBody, Category: model.CategoryLifecycle}

	case "agent_step_start":
		phase, _ := p.stringField("phase")
		var msgBody model.Body
		if m, ok := p.stringField("message"); ok {
			msgBody = model.TextBody(m)
		}
		return model.SessionMessage{Seq: seq, Title: fmt.Sprintf("Step Start: %s", phase), Body: msgBody, Category: model.CategoryLifecycle}

	case "agent_step_end":
		phase, _ := p.stringField("phase")
		var success bool
		p.field("success", &success)
		mark := "✗"
		category := model.CategoryError
		if success {
			mark = "✓"
			category = model.CategoryLifecycle
		}
		var msgBody model.Body
		if s, ok := p.stringField("summary"); ok {
			msgBody = model.TextBody(s)
		}
		return model.SessionMessage{Seq: seq, Title: fmt.Sprintf("Step End: %s %s", phase, mark), Body: msgBody, Category: category}

	case "llm_thinking":
		text, _ := p.stringField("text")
		return model.SessionMessage{Seq: seq, Title: "Thinking", Body: model.TextBody(text), Category: model.CategoryLLMOutput}

	case "llm_response":
		text, _ := p.stringField("text")
		var isUser bool
		p.field("isUserRequest", &isUser)
		title := "Model Response"
		if isUser {
			title = "User"
		}
		return model.SessionMessage{Seq: seq, Title: title, Body: model.TextBody(text), Category: model.CategoryLLMOutput}

	case "llm_tool_use":
		name, _ := p.stringField("name")
		var summary string
		if raw, ok := p.rawField("inputSummary"); ok {
			summary = canonicalJSONString(raw)
		} else if raw, ok := p.rawField("input"); ok {
			summary = canonicalJSONString(raw)
		}
		return model.SessionMessage{Seq: seq, Title: fmt.Sprintf("Invoke Tool: %s", name), Body: model.MonospacedBody(summary), Category: model.CategoryToolUse}

	case "llm_tool_result":
		name, _ := p.stringField("name")
		var result string
		if raw, ok := p.rawField("result"); ok {
			result = canonicalJSONString(raw)
		}
		if name != "Task" {
			result = truncateLines(result)
		}
		return model.SessionMessage{Seq: seq, Title: fmt.Sprintf("Tool Result: %s", name), Body: model.MonospacedBody(result), Category: model.CategoryToolUse}

	case "llm_status":
		status, _ := p.stringField("status")
		detail, hasDetail := p.stringField("detail")
		text := status
		if hasDetail && detail != "" {
			text = status + "\n" + detail
		}
		return model.SessionMessage{Seq: seq, Title: "Status", Body: model.TextBody(text), Category: model.CategoryLog}

	case "todo_update":
		var items []struct {
			Label  string `json:"label"`
			Status string `json:"status"`
		}
		p.field("todos", &items)
		todos := make([]model.TodoItem, 0, len(items))
		for _, it := range items {
			todos = append(todos, model.TodoItem{Label: it.Label, Status: model.ParseTodoStatus(it.Status)})
		}
		return model.SessionMessage{Seq: seq, Title: "Todo Update", Body: model.TodoListBody(todos), Category: model.CategoryProgress}

	case "file_write":
		path, _ := p.stringField("path")
		var lines int
		p.field("lines", &lines)
		return model.SessionMessage{Seq: seq, Title: "Invoke Tool: Write", Body: model.MonospacedBody(fmt.Sprintf("%s (%d lines)", path, lines)), Category: model.CategoryFileChange}

	case "file_edit":
		path, _ := p.stringField("path")
		diff, _ := p.stringField("diff")
		return model.SessionMessage{Seq: seq, Title: "Invoke Tool: Edit", Body: model.MonospacedBody(path + "\n" + diff), Category: model.CategoryFileChange}

	case "file_change_summary":
		var files []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		}
		p.field("files", &files)
		items := make([]model.FileChangeItem, 0, len(files))
		for _, f := range files {
			items = append(items, model.FileChangeItem{Path: f.Path, Kind: model.ParseFileChangeKind(f.Kind)})
		}
		return model.SessionMessage{Seq: seq, Title: "File Changes", Body: model.FileChangesBody(items), Category: model.CategoryFileChange}

	case "command_exec":
		command, _ := p.stringField("command")
		cwd, hasCwd := p.stringField("cwd")
		text := command
		if hasCwd && cwd != "" {
			text = command + "\n" + cwd
		}
		return model.SessionMessage{Seq: seq, Title: "Exec Begin", Body: model.MonospacedBody(text), Category: model.CategoryCommand}

	case "command_result":
		command, _ := p.stringField("command")
		cwd, hasCwd := p.stringField("cwd")
		var exitCode int
		p.field("exitCode", &exitCode)
		stdout, _ := p.stringField("stdout")
		stderr, _ := p.stringField("stderr")
		lines := []string{command}
		if hasCwd && cwd != "" {
			lines = append(lines, cwd)
		}
		if exitCode != 0 {
			lines = append(lines, fmt.Sprintf("Exit Code: %d", exitCode))
		}
		if stdout != "" {
			lines = append(lines, truncateLines(stdout))
		}
		if stderr != "" {
			lines = append(lines, truncateLines(stderr))
		}
		return model.SessionMessage{Seq: seq, Title: "Exec Finished", Body: model.MonospacedBody(strings.Join(lines, "\n")), Category: model.CategoryCommand}

	case "review_start":
		reviewer, _ := p.stringField("reviewer")
		target, _ := p.stringField("target")
		text := strings.TrimSpace(reviewer + " " + target)
		return model.SessionMessage{Seq: seq, Title: "Executing Review", Body: model.TextBody(text), Category: model.CategoryLifecycle}

	case "review_result":
		summary, _ := p.stringField("summary")
		return model.SessionMessage{Seq: seq, Title: "Review Result", Body: model.TextBody(summary), Category: model.CategoryLifecycle}

	case "review_verdict":
		verdict, _ := p.stringField("verdict")
		return model.SessionMessage{Seq: seq, Title: "Review Verdict", Body: model.TextBody(verdict), Category: model.CategoryLifecycle}

	case "workflow_progress":
		phase, hasPhase := p.stringField("phase")
		message, hasMessage := p.stringField("message")
		var msgBody model.Body
		if hasMessage {
			text := message
			if hasPhase && phase != "" {
				text = fmt.Sprintf("[%s] %s", phase, message)
			}
			msgBody = model.TextBody(text)
		}
		return model.SessionMessage{Seq: seq, Body: msgBody, Category: model.CategoryProgress}

	case "failure_report":
		reason, _ := p.stringField("reason")
		sections := []string{"FAILED: " + reason}
		var labeled map[string]string
		if p.field("sections", &labeled) {
			keys := make([]string, 0, len(labeled))
			for k := range labeled {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				sections = append(sections, fmt.Sprintf("%s: %s", k, labeled[k]))
			}
		}
		return model.SessionMessage{Seq: seq, Body: model.TextBody(strings.Join(sections, "\n")), Category: model.CategoryError}

	case "task_completion":
		title, _ := p.stringField("title")
		var planComplete bool
		p.field("planComplete", &planComplete)
		text := fmt.Sprintf("Task complete: %s", title)
		if planComplete {
			text += " (plan complete)"
		}
		return model.SessionMessage{Seq: seq, Body: model.TextBody(text), Category: model.CategoryLifecycle}

	case "execution_summary":
		var pairs []model.KeyValue
		var m map[string]json.RawMessage
		if p.field("fields", &m) {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				pairs = append(pairs, model.KeyValue{Key: k, Value: canonicalJSONString(m[k])})
			}
		}
		return model.SessionMessage{Seq: seq, Title: "Execution Summary", Body: model.KeyValuePairsBody(pairs), Category: model.CategoryLifecycle}

	case "token_usage":
		var parts []string
		for _, f := range []struct{ key, label string }{
			{"input", "input"}, {"cached", "cached"}, {"output", "output"}, {"reasoning", "reasoning"}, {"total", "total"},
		} {
			if raw, ok := p.rawField(f.key); ok {
				parts = append(parts, fmt.Sprintf("%s=%s", f.label, canonicalJSONString(raw)))
			}
		}
		return model.SessionMessage{Seq: seq, Title: "Usage", Body: model.TextBody(strings.Join(parts, " ")), Category: model.CategoryLog}

	case "input_required":
		text, _ := p.stringField("text")
		return model.SessionMessage{Seq: seq, Title: "Input Required", Body: model.TextBody(text), Category: model.CategoryProgress}

	case "prompt_request":
		reqType, _ := p.stringField("promptType")
		message, _ := p.stringField("message")
		return model.SessionMessage{Seq: seq, Body: model.TextBody(fmt.Sprintf("Prompt (%s): %s", reqType, message)), Category: model.CategoryProgress}

	case "prompt_answered":
		reqType, _ := p.stringField("promptType")
		source, _ := p.stringField("source")
		return model.SessionMessage{Seq: seq, Body: model.TextBody(fmt.Sprintf("Prompt answered (%s) by %s", reqType, source)), Category: model.CategoryLog}

	case "plan_discovery":
		id, _ := p.stringField("planId")
		title, _ := p.stringField("title")
		return model.SessionMessage{Seq: seq, Title: "Plan Discovery", Body: model.TextBody(fmt.Sprintf("Found ready plan: %s - %s", id, title)), Category: model.CategoryLifecycle}

	case "user_terminal_input":
		content, _ := p.stringField("content")
		return model.SessionMessage{Seq: seq, Title: "You", Body: model.TextBody(content), Category: model.CategoryUserInput}

	case "workspace_info":
		var pairs []model.KeyValue
		var m map[string]json.RawMessage
		if p.field("fields", &m) {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				pairs = append(pairs, model.KeyValue{Key: k, Value: canonicalJSONString(m[k])})
			}
		}
		return model.SessionMessage{Seq: seq, Title: "Workspace", Body: model.KeyValuePairsBody(pairs), Category: model.CategoryLog}

	default:
		return model.SessionMessage{Seq: seq, Body: model.TextBody(fmt.Sprintf("Unknown message type: %s", p.Type)), Category: model.CategoryLog}
	}
}

// UserTerminalInputSource reports the "source" field of a user_terminal_input
// structured payload, used by the aggregator's echo-suppression rule.
func UserTerminalInputSource(p *StructuredMessagePayload) string {
	if p == nil {
		return ""
	}
	source, _ := p.stringField("source")
	return source
}

// InputRequiredText returns the "text" field of an input_required
// structured payload, used to build the aggregator's notification banner.
func InputRequiredText(p *StructuredMessagePayload) string {
	if p == nil {
		return ""
	}
	text, _ := p.stringField("text")
	return text
}

// PromptAnsweredRequestID returns the "requestId" field of a
// prompt_answered structured payload, used to clear the aggregator's
// pending prompt once the agent confirms it processed the response.
func PromptAnsweredRequestID(p *StructuredMessagePayload) (string, bool) {
	if p == nil {
		return "", false
	}
	return p.stringField("requestId")
}

// SessionMetadataTitle returns the non-empty, trimmed title carried by a
// plan_discovery or execution_summary structured payload, used to update
// a session's plan_title.
func SessionMetadataTitle(p *StructuredMessagePayload) (string, bool) {
	if p == nil {
		return "", false
	}
	switch p.Type {
	case "plan_discovery":
		if title, ok := p.stringField("title"); ok {
			if trimmed := strings.TrimSpace(title); trimmed != "" {
				return trimmed, true
			}
		}
	case "execution_summary":
		var m map[string]json.RawMessage
		if p.field("fields", &m) {
			if raw, ok := m["title"]; ok {
				var title string
				if json.Unmarshal(raw, &title) == nil {
					if trimmed := strings.TrimSpace(title); trimmed != "" {
						return trimmed, true
					}
				}
			}
		}
	}
	return "", false
}
