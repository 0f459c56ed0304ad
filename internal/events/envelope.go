// Package events decodes the WebSocket wire envelope into presentation-
// independent data: the outer HeadlessMessage, the TunnelMessage carried
// by an "output" envelope, and the StructuredMessagePayload formatting
// table.
package events

import (
	"encoding/json"
	"fmt"
)

// HeadlessMessageType is the outer envelope's discriminator.
type HeadlessMessageType string

const (
	TypeSessionInfo HeadlessMessageType = "session_info"
	TypeOutput      HeadlessMessageType = "output"
	TypeReplayStart HeadlessMessageType = "replay_start"
	TypeReplayEnd   HeadlessMessageType = "replay_end"
)

// SessionInfo is the session_info payload.
type SessionInfo struct {
	Command        string
	PlanID         *int
	PlanTitle      *string
	WorkspacePath  *string
	GitRemote      *string
	TerminalPaneID *string
	TerminalType   *string
}

// TunnelMessage is the message carried by an "output" envelope.
type TunnelMessage struct {
	Type    string
	Args    []string
	Data    string
	Message *StructuredMessagePayload
}

// Output is the decoded "output" envelope: a sequence number plus the
// TunnelMessage it carries.
type Output struct {
	Seq     int
	Message TunnelMessage
}

// HeadlessMessage is the fully decoded outer envelope. Exactly one of the
// payload fields is populated, selected by Type.
type HeadlessMessage struct {
	Type        HeadlessMessageType
	SessionInfo *SessionInfo
	Output      *Output
}

// ErrUnknownEnvelope is returned for an outer type this decoder doesn't
// recognize. Callers log it once and move on rather than treating it as
// fatal — new envelope types are expected to show up over time.
var ErrUnknownEnvelope = fmt.Errorf("events: unknown envelope type")

type rawEnvelope struct {
	Type HeadlessMessageType `json:"type"`

	// session_info fields
	Command        string  `json:"command"`
	PlanID         *int    `json:"planId"`
	PlanTitle      *string `json:"planTitle"`
	WorkspacePath  *string `json:"workspacePath"`
	GitRemote      *string `json:"gitRemote"`
	TerminalPaneID *string `json:"terminalPaneId"`
	TerminalType   *string `json:"terminalType"`

	// output fields
	Seq     int             `json:"seq"`
	Message json.RawMessage `json:"message"`
}

// DecodeHeadlessMessage parses one WebSocket text frame's payload.
func DecodeHeadlessMessage(data []byte) (*HeadlessMessage, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch raw.Type {
	case TypeSessionInfo:
		return &HeadlessMessage{
			Type: TypeSessionInfo,
			SessionInfo: &SessionInfo{
				Command:        raw.Command,
				PlanID:         raw.PlanID,
				PlanTitle:      raw.PlanTitle,
				WorkspacePath:  raw.WorkspacePath,
				GitRemote:      raw.GitRemote,
				TerminalPaneID: raw.TerminalPaneID,
				TerminalType:   raw.TerminalType,
			},
		}, nil

	case TypeOutput:
		tm, err := decodeTunnelMessage(raw.Message)
		if err != nil {
			return nil, fmt.Errorf("decode output message: %w", err)
		}
		return &HeadlessMessage{
			Type:   TypeOutput,
			Output: &Output{Seq: raw.Seq, Message: *tm},
		}, nil

	case TypeReplayStart:
		return &HeadlessMessage{Type: TypeReplayStart}, nil

	case TypeReplayEnd:
		return &HeadlessMessage{Type: TypeReplayEnd}, nil

	default:
		return nil, ErrUnknownEnvelope
	}
}

type rawTunnelMessage struct {
	Type    string          `json:"type"`
	Args    []string        `json:"args"`
	Data    string          `json:"data"`
	Message json.RawMessage `json:"message"`
}

func decodeTunnelMessage(data json.RawMessage) (*TunnelMessage, error) {
	var raw rawTunnelMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	tm := &TunnelMessage{Type: raw.Type, Args: raw.Args, Data: raw.Data}
	switch raw.Type {
	case "log", "error", "warn", "debug", "stdout", "stderr":
		return tm, nil
	case "structured":
		payload, err := decodeStructuredPayload(raw.Message)
		if err != nil {
			return nil, err
		}
		tm.Message = payload
		return tm, nil
	default:
		return tm, nil
	}
}
