// Package parts defines the message-part data model shared by live streams
// and stored history, and the classifier that assigns each wire record to
// exactly one part kind.
//
// Part is a sealed union: TextPart, ReasoningPart, ToolPart, DynamicToolPart,
// NetworkPart and SourcePart are the recognized variants. Records that cannot
// be classified are kept verbatim as UnknownPart so stored conversations
// round-trip without loss.
package parts

import (
	"encoding/json"
	"strings"
)

// Kind identifies the variant of a part.
type Kind string

const (
	// KindText is plain assistant or user text.
	KindText Kind = "text"
	// KindReasoning is model reasoning, shown only while streaming.
	KindReasoning Kind = "reasoning"
	// KindTool is a tool invocation whose wire type is "tool-<name>".
	KindTool Kind = "tool"
	// KindDynamicTool is the replayed form of a tool invocation carrying its
	// nested child messages.
	KindDynamicTool Kind = "dynamic-tool"
	// KindNetwork is an agent network execution trace.
	KindNetwork Kind = "network"
	// KindSource is a citable source reference.
	KindSource Kind = "source"
	// KindUnclassified is a well-formed record with an unknown discriminant.
	KindUnclassified Kind = "unclassified"
	// KindMalformed is a record lacking a usable discriminant or payload.
	KindMalformed Kind = "malformed"
)

// Wire discriminants.
const (
	TypeText        = "text"
	TypeReasoning   = "reasoning"
	TypeToolPrefix  = "tool-"
	TypeDynamicTool = "dynamic-tool"
	TypeNetwork     = "data-network"
	TypeSourceURL   = "source-url"
	TypeSource      = "source"
)

// NetworkMarker is the substring embedded in text parts that carry internal
// network bookkeeping rather than displayable content.
const NetworkMarker = `"isNetwork":true`

// Roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Tool states.
const (
	ToolInputStreaming = "input-streaming"
	ToolInputAvailable = "input-available"
	ToolOutputReady    = "output-available"
	ToolOutputError    = "output-error"
)

// Network statuses.
const (
	NetworkRunning   = "running"
	NetworkFinished  = "finished"
	NetworkSuccess   = "success"
	NetworkFailed    = "failed"
	NetworkWaiting   = "waiting"
	NetworkSuspended = "suspended"
	NetworkPaused    = "paused"
)

type (
	// Part is implemented by every part variant.
	Part interface {
		Kind() Kind
		isPart()
	}

	// TextPart holds text content. Extra keeps record members that are not
	// modeled (e.g. providerMetadata) so they survive a re-encode.
	TextPart struct {
		Text  string
		State string
		Extra map[string]json.RawMessage
	}

	// ReasoningPart holds model reasoning text.
	ReasoningPart struct {
		Text  string
		State string
		Extra map[string]json.RawMessage
	}

	// ToolPart records one tool invocation. ToolType is the suffix of the
	// "tool-" wire discriminant.
	ToolPart struct {
		ToolType   string
		ToolCallID string
		State      string
		Input      json.RawMessage
		Output     json.RawMessage
		ErrorText  string
		// Extra keeps unmodeled record members such as providerExecuted.
		Extra      map[string]json.RawMessage
	}

	// DynamicToolPart is the replayed form of a tool invocation. Output
	// usually carries childMessages (see ChildMessages).
	DynamicToolPart struct {
		ToolName   string
		ToolCallID string
		State      string
		Input      json.RawMessage
		Output     json.RawMessage
		ErrorText  string
		Extra      map[string]json.RawMessage
	}

	// ChildMessage is one nested message of a dynamic tool output. Type is
	// "tool" (ToolName, Args, ToolOutput set) or "text" (Content set).
	ChildMessage struct {
		Type       string          `json:"type"`
		ToolName   string          `json:"toolName,omitempty"`
		Args       json.RawMessage `json:"args,omitempty"`
		ToolOutput json.RawMessage `json:"toolOutput,omitempty"`
		Content    string          `json:"content,omitempty"`
	}

	// NetworkPart is the execution trace of an agent network.
	NetworkPart struct {
		ID     string
		Name   string
		Status string
		Steps  []Step
		Output json.RawMessage
	}

	// Step is one step of a network trace.
	Step struct {
		ID     string          `json:"id,omitempty"`
		Name   string          `json:"name,omitempty"`
		Status string          `json:"status,omitempty"`
		Task   *Task           `json:"task,omitempty"`
		Input  json.RawMessage `json:"input,omitempty"`
		Output json.RawMessage `json:"output,omitempty"`
	}

	// Task describes the routing decision behind a network step. Reason is
	// the routing rationale surfaced while streaming and scrubbed from
	// history.
	Task struct {
		ID          string          `json:"id,omitempty"`
		Type        string          `json:"type,omitempty"`
		Reason      string          `json:"reason,omitempty"`
		ToolResults json.RawMessage `json:"toolResults,omitempty"`
	}

	// SourcePart is a citable source reference.
	SourcePart struct {
		SourceID    string `json:"sourceId,omitempty"`
		URL         string `json:"url"`
		Title       string `json:"title,omitempty"`
		Description string `json:"description,omitempty"`
		LastUpdated string `json:"lastUpdated,omitempty"`
	}

	// UnknownPart keeps an unclassified or malformed record verbatim.
	UnknownPart struct {
		// Class is KindUnclassified or KindMalformed.
		Class Kind
		// Type is the raw discriminant when one could be read.
		Type string
		// Raw is the original record.
		Raw json.RawMessage
	}
)

func (TextPart) Kind() Kind        { return KindText }
func (ReasoningPart) Kind() Kind   { return KindReasoning }
func (ToolPart) Kind() Kind        { return KindTool }
func (DynamicToolPart) Kind() Kind { return KindDynamicTool }
func (NetworkPart) Kind() Kind     { return KindNetwork }
func (SourcePart) Kind() Kind      { return KindSource }
func (u UnknownPart) Kind() Kind   { return u.Class }

func (TextPart) isPart()        {}
func (ReasoningPart) isPart()   {}
func (ToolPart) isPart()        {}
func (DynamicToolPart) isPart() {}
func (NetworkPart) isPart()     {}
func (SourcePart) isPart()      {}
func (UnknownPart) isPart()     {}

// Type returns the wire discriminant of the tool part.
func (p ToolPart) Type() string { return TypeToolPrefix + p.ToolType }

// ChildMessages decodes the nested child messages of the dynamic tool
// output. It returns nil when the output carries none.
func (p DynamicToolPart) ChildMessages() []ChildMessage {
	if len(p.Output) == 0 {
		return nil
	}
	var out struct {
		ChildMessages []ChildMessage `json:"childMessages"`
	}
	if err := json.Unmarshal(p.Output, &out); err != nil {
		return nil
	}
	return out.ChildMessages
}

// Dispatchable reports whether parts of kind k are routed to renderers.
func (k Kind) Dispatchable() bool {
	switch k {
	case KindText, KindReasoning, KindTool, KindDynamicTool, KindNetwork, KindSource:
		return true
	default:
		return false
	}
}

// Displayable reports whether p contributes visible content to a message:
// non-blank text, any tool or dynamic tool invocation, or a network trace.
// Reasoning and sources alone do not make a message displayable.
func Displayable(p Part) bool {
	switch v := p.(type) {
	case TextPart:
		return strings.TrimSpace(v.Text) != ""
	case ToolPart, DynamicToolPart, NetworkPart:
		return true
	default:
		return false
	}
}

// IsNetworkMarker reports whether text carries the internal network marker.
func IsNetworkMarker(text string) bool {
	return strings.Contains(text, NetworkMarker)
}

// Completed reports whether the network reached a terminal success status.
func (p NetworkPart) Completed() bool {
	return p.Status == NetworkFinished || p.Status == NetworkSuccess
}
