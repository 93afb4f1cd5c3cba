package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"goa.design/partview/runtime/parts"
)

type (
	// Structured is a weather-like payload found in a network trace.
	Structured struct {
		Raw         json.RawMessage
		Location    string
		Temperature float64
		Conditions  string
	}

	// ToolCall is a tool invocation nested in a dynamic tool output.
	ToolCall struct {
		Name   string
		Args   json.RawMessage
		Output json.RawMessage
	}
)

// NetworkReason returns the routing reason of the first step whose task
// carries a non-blank reason.
func NetworkReason(np parts.NetworkPart) (string, bool) {
	for _, step := range np.Steps {
		if step.Task == nil {
			continue
		}
		if r := strings.TrimSpace(step.Task.Reason); r != "" {
			return r, true
		}
	}
	return "", false
}

// MessageNetworkReason returns the reason of the first network part of m
// that has one.
func MessageNetworkReason(m parts.Message) (string, bool) {
	for _, p := range m.Parts {
		if np, ok := p.(parts.NetworkPart); ok {
			if r, ok := NetworkReason(np); ok {
				return r, true
			}
		}
	}
	return "", false
}

// StructuredPayload finds the first weather-like object in np: an object
// with a numeric temperature and a location or conditions field. Step
// outputs are searched first, then task tool results, then the network
// output.
func StructuredPayload(np parts.NetworkPart) (Structured, bool) {
	var candidates []json.RawMessage
	for _, step := range np.Steps {
		candidates = append(candidates, step.Output)
	}
	for _, step := range np.Steps {
		if step.Task != nil {
			candidates = append(candidates, step.Task.ToolResults)
		}
	}
	candidates = append(candidates, np.Output)
	for _, raw := range candidates {
		if len(raw) == 0 || !gjson.ValidBytes(raw) {
			continue
		}
		if s, ok := findStructured(gjson.ParseBytes(raw), 0); ok {
			return s, true
		}
	}
	return Structured{}, false
}

func findStructured(doc gjson.Result, depth int) (Structured, bool) {
	if depth > 3 {
		return Structured{}, false
	}
	if doc.IsArray() {
		var (
			found Structured
			ok    bool
		)
		doc.ForEach(func(_, item gjson.Result) bool {
			found, ok = findStructured(item, depth+1)
			return !ok
		})
		return found, ok
	}
	if !doc.IsObject() {
		return Structured{}, false
	}
	temp := doc.Get("temperature")
	loc := doc.Get("location")
	cond := doc.Get("conditions")
	if temp.Type == gjson.Number && (loc.Exists() || cond.Exists()) {
		return Structured{
			Raw:         json.RawMessage(doc.Raw),
			Location:    loc.String(),
			Temperature: temp.Float(),
			Conditions:  cond.String(),
		}, true
	}
	for _, key := range []string{"result", "output", "data"} {
		if nested := doc.Get(key); nested.Exists() {
			if s, ok := findStructured(nested, depth+1); ok {
				return s, true
			}
		}
	}
	return Structured{}, false
}

// OutputText renders a raw output as text: JSON strings verbatim, objects
// carrying a text, result, content or output string field as that field,
// anything else as compact JSON. Empty and null outputs yield "".
func OutputText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || !gjson.ValidBytes(raw) {
		return ""
	}
	doc := gjson.ParseBytes(raw)
	if doc.Type == gjson.String {
		return doc.Str
	}
	if doc.IsObject() {
		for _, key := range []string{"text", "result", "content", "output"} {
			if v := doc.Get(key); v.Type == gjson.String {
				return v.Str
			}
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ToolCalls lists the tool invocations nested in a dynamic tool output in
// order.
func ToolCalls(p parts.DynamicToolPart) []ToolCall {
	var calls []ToolCall
	for _, child := range p.ChildMessages() {
		if child.Type != "tool" {
			continue
		}
		calls = append(calls, ToolCall{Name: child.ToolName, Args: child.Args, Output: child.ToolOutput})
	}
	return calls
}
