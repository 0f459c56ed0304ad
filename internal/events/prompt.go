package events

import (
	"encoding/json"

	"github.com/timhq/tim-agent-core/internal/model"
)

// decodePromptValue tries Bool, then Int, then Double, then String to
// preserve the value's origin type; arrays and objects recurse.
func decodePromptValue(raw json.RawMessage) model.PromptResponseValue {
	if raw == nil || string(raw) == "null" {
		return model.PromptResponseValue{Kind: model.PromptValueNone}
	}

	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return model.PromptResponseValue{Kind: model.PromptValueBool, Bool: b}
	}

	var i int64
	if json.Unmarshal(raw, &i) == nil {
		return model.PromptResponseValue{Kind: model.PromptValueInt, Int: i}
	}

	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return model.PromptResponseValue{Kind: model.PromptValueDouble, Double: f}
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return model.PromptResponseValue{Kind: model.PromptValueString, Str: s}
	}

	var arr []json.RawMessage
	if json.Unmarshal(raw, &arr) == nil {
		items := make([]model.PromptResponseValue, 0, len(arr))
		for _, e := range arr {
			items = append(items, decodePromptValue(e))
		}
		return model.PromptResponseValue{Kind: model.PromptValueArray, Array: items}
	}

	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) == nil {
		items := make(map[string]model.PromptResponseValue, len(obj))
		for k, v := range obj {
			items[k] = decodePromptValue(v)
		}
		return model.PromptResponseValue{Kind: model.PromptValueObject, Object: items}
	}

	return model.PromptResponseValue{Kind: model.PromptValueNone}
}

// DecodePromptResponseValue decodes any JSON value into the typed union
// used for prompt defaults, choice values, and prompt_answered.value.
func DecodePromptResponseValue(raw json.RawMessage) model.PromptResponseValue {
	return decodePromptValue(raw)
}

type rawPromptChoice struct {
	Name        string          `json:"name"`
	Value       json.RawMessage `json:"value"`
	Description *string         `json:"description"`
	Checked     *bool           `json:"checked"`
}

func decodePromptConfig(p *StructuredMessagePayload) model.PromptConfig {
	cfg := model.PromptConfig{}
	if v, ok := p.stringField("message"); ok {
		cfg.Message = v
	}
	if raw, ok := p.rawField("default"); ok {
		v := decodePromptValue(raw)
		cfg.Default = &v
	}
	var choices []rawPromptChoice
	if p.field("choices", &choices) {
		for _, c := range choices {
			choice := model.PromptChoice{Name: c.Name, Description: c.Description, Checked: c.Checked}
			if c.Value != nil && string(c.Value) != "null" {
				v := decodePromptValue(c.Value)
				choice.Value = &v
			}
			cfg.Choices = append(cfg.Choices, choice)
		}
	}
	var pageSize int
	if p.field("pageSize", &pageSize) {
		cfg.PageSize = &pageSize
	}
	if v, ok := p.stringField("validationHint"); ok {
		cfg.ValidationHint = &v
	}
	if v, ok := p.stringField("command"); ok {
		cfg.Command = &v
	}
	return cfg
}

// DecodePromptRequest builds a model.PromptRequest from a prompt_request
// structured payload, for the aggregator's set_active_prompt. It returns
// false if p is not a prompt_request variant.
func DecodePromptRequest(p *StructuredMessagePayload) (*model.PromptRequest, bool) {
	if p == nil || p.Type != "prompt_request" {
		return nil, false
	}
	requestID, _ := p.stringField("requestId")
	promptType, _ := p.stringField("promptType")
	return &model.PromptRequest{
		RequestID: requestID,
		Type:      promptType,
		Config:    decodePromptConfig(p),
	}, true
}
