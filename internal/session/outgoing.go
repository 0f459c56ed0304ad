package session

import (
	"encoding/json"

	"github.com/timhq/tim-agent-core/internal/model"
)

// encodeUserInput builds the server->agent user_input envelope.
func encodeUserInput(content string) string {
	data, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{Type: "user_input", Content: content})
	return string(data)
}

// encodePromptResponse builds the server->agent prompt_response envelope,
// re-expanding the typed PromptResponseValue back to plain JSON.
func encodePromptResponse(requestID string, value model.PromptResponseValue) string {
	data, _ := json.Marshal(struct {
		Type      string `json:"type"`
		RequestID string `json:"requestId"`
		Value     any    `json:"value"`
	}{Type: "prompt_response", RequestID: requestID, Value: promptValueToAny(value)})
	return string(data)
}

func promptValueToAny(v model.PromptResponseValue) any {
	switch v.Kind {
	case model.PromptValueBool:
		return v.Bool
	case model.PromptValueInt:
		return v.Int
	case model.PromptValueDouble:
		return v.Double
	case model.PromptValueString:
		return v.Str
	case model.PromptValueArray:
		out := make([]any, 0, len(v.Array))
		for _, e := range v.Array {
			out = append(out, promptValueToAny(e))
		}
		return out
	case model.PromptValueObject:
		out := make(map[string]any, len(v.Object))
		for k, e := range v.Object {
			out[k] = promptValueToAny(e)
		}
		return out
	default:
		return nil
	}
}
