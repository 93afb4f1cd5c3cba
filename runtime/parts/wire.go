package parts

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	textMembers = []string{"type", "text", "state"}
	toolMembers = []string{"type", "toolName", "toolCallId", "state", "input", "output", "errorText"}
)

type (
	textWire struct {
		Type  string `json:"type"`
		Text  string `json:"text"`
		State string `json:"state,omitempty"`
	}

	toolWire struct {
		Type       string          `json:"type"`
		ToolName   string          `json:"toolName,omitempty"`
		ToolCallID string          `json:"toolCallId,omitempty"`
		State      string          `json:"state,omitempty"`
		Input      json.RawMessage `json:"input,omitempty"`
		Output     json.RawMessage `json:"output,omitempty"`
		ErrorText  string          `json:"errorText,omitempty"`
	}

	networkData struct {
		Name   string          `json:"name,omitempty"`
		Status string          `json:"status,omitempty"`
		Steps  []Step          `json:"steps,omitempty"`
		Output json.RawMessage `json:"output,omitempty"`
	}

	networkWire struct {
		Type string       `json:"type"`
		ID   string       `json:"id,omitempty"`
		Data *networkData `json:"data,omitempty"`
		// Flat layout used by older records.
		networkData
	}

	sourceFields SourcePart

	sourceWire struct {
		Type string `json:"type"`
		sourceFields
	}

	legacySourceWire struct {
		Type   string        `json:"type"`
		Source *sourceFields `json:"source,omitempty"`
		sourceFields
	}
)

// MarshalJSON encodes the text part in its wire form.
func (p TextPart) MarshalJSON() ([]byte, error) {
	return withExtra(textWire{Type: TypeText, Text: p.Text, State: p.State}, p.Extra)
}

// MarshalJSON encodes the reasoning part in its wire form.
func (p ReasoningPart) MarshalJSON() ([]byte, error) {
	return withExtra(textWire{Type: TypeReasoning, Text: p.Text, State: p.State}, p.Extra)
}

// MarshalJSON encodes the tool part with its "tool-<name>" discriminant.
func (p ToolPart) MarshalJSON() ([]byte, error) {
	return withExtra(toolWire{
		Type:       p.Type(),
		ToolCallID: p.ToolCallID,
		State:      p.State,
		Input:      p.Input,
		Output:     p.Output,
		ErrorText:  p.ErrorText,
	}, p.Extra)
}

// MarshalJSON encodes the dynamic tool part in its wire form.
func (p DynamicToolPart) MarshalJSON() ([]byte, error) {
	return withExtra(toolWire{
		Type:       TypeDynamicTool,
		ToolName:   p.ToolName,
		ToolCallID: p.ToolCallID,
		State:      p.State,
		Input:      p.Input,
		Output:     p.Output,
		ErrorText:  p.ErrorText,
	}, p.Extra)
}

// MarshalJSON encodes the network part with its payload under "data".
func (p NetworkPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string      `json:"type"`
		ID   string      `json:"id,omitempty"`
		Data networkData `json:"data"`
	}{
		Type: TypeNetwork,
		ID:   p.ID,
		Data: networkData{Name: p.Name, Status: p.Status, Steps: p.Steps, Output: p.Output},
	})
}

// MarshalJSON encodes the source part as a "source-url" record.
func (p SourcePart) MarshalJSON() ([]byte, error) {
	return json.Marshal(sourceWire{Type: TypeSourceURL, sourceFields: sourceFields(p)})
}

// MarshalJSON returns the original record, or null when the record is not
// valid JSON.
func (p UnknownPart) MarshalJSON() ([]byte, error) {
	if !json.Valid(p.Raw) {
		return []byte("null"), nil
	}
	return p.Raw, nil
}

func decodeText(raw json.RawMessage) (TextPart, error) {
	var w textWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return TextPart{}, err
	}
	return TextPart{Text: w.Text, State: w.State, Extra: extraMembers(raw, textMembers)}, nil
}

func decodeReasoning(raw json.RawMessage) (ReasoningPart, error) {
	t, err := decodeText(raw)
	if err != nil {
		return ReasoningPart{}, err
	}
	return ReasoningPart(t), nil
}

func decodeTool(raw json.RawMessage, typ string) (ToolPart, error) {
	var w toolWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return ToolPart{}, err
	}
	return ToolPart{
		ToolType:   strings.TrimPrefix(typ, TypeToolPrefix),
		ToolCallID: w.ToolCallID,
		State:      w.State,
		Input:      w.Input,
		Output:     w.Output,
		ErrorText:  w.ErrorText,
		Extra:      extraMembers(raw, toolMembers),
	}, nil
}

func decodeDynamicTool(raw json.RawMessage) (DynamicToolPart, error) {
	var w toolWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return DynamicToolPart{}, err
	}
	return DynamicToolPart{
		ToolName:   w.ToolName,
		ToolCallID: w.ToolCallID,
		State:      w.State,
		Input:      w.Input,
		Output:     w.Output,
		ErrorText:  w.ErrorText,
		Extra:      extraMembers(raw, toolMembers),
	}, nil
}

func decodeNetwork(raw json.RawMessage) (NetworkPart, error) {
	var w networkWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return NetworkPart{}, err
	}
	data := w.networkData
	if w.Data != nil {
		data = *w.Data
	}
	return NetworkPart{
		ID:     w.ID,
		Name:   data.Name,
		Status: data.Status,
		Steps:  data.Steps,
		Output: data.Output,
	}, nil
}

func decodeSource(raw json.RawMessage) (SourcePart, error) {
	var w legacySourceWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return SourcePart{}, err
	}
	if w.Source != nil {
		return SourcePart(*w.Source), nil
	}
	return SourcePart(w.sourceFields), nil
}

// extraMembers returns the members of the raw record not listed in known,
// or nil when there are none.
func extraMembers(raw json.RawMessage, known []string) map[string]json.RawMessage {
	var extra map[string]json.RawMessage
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		if slices.Contains(known, key.String()) {
			return true
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[key.String()] = json.RawMessage(value.Raw)
		return true
	})
	return extra
}

// withExtra encodes v and adds the extra members it does not already set.
func withExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(b, &members); err != nil {
		return nil, err
	}
	for k, val := range extra {
		if _, ok := members[k]; !ok {
			members[k] = val
		}
	}
	return json.Marshal(members)
}
