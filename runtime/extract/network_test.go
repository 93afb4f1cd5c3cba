package extract_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/partview/runtime/extract"
	"goa.design/partview/runtime/parts"
)

func weatherNetwork() parts.NetworkPart {
	return parts.NetworkPart{
		ID:     "n1",
		Name:   "weather",
		Status: parts.NetworkFinished,
		Steps: []parts.Step{
			{Name: "router", Task: &parts.Task{Reason: "  "}},
			{Name: "router", Task: &parts.Task{Reason: "The user asks about weather"}},
			{Name: "weather-agent", Output: json.RawMessage(`{"result":{"location":"Paris","temperature":21.5,"conditions":"sunny","sources":[{"url":"https://meteo.example"}]}}`)},
		},
		Output: json.RawMessage(`{"text":"It is sunny in Paris"}`),
	}
}

func TestNetworkReason(t *testing.T) {
	reason, ok := extract.NetworkReason(weatherNetwork())
	require.True(t, ok)
	require.Equal(t, "The user asks about weather", reason)

	_, ok = extract.NetworkReason(parts.NetworkPart{Steps: []parts.Step{{Name: "a"}}})
	require.False(t, ok)

	msg := parts.Message{Parts: []parts.Part{parts.TextPart{Text: "x"}, weatherNetwork()}}
	reason, ok = extract.MessageNetworkReason(msg)
	require.True(t, ok)
	require.Equal(t, "The user asks about weather", reason)
}

func TestStructuredPayload(t *testing.T) {
	s, ok := extract.StructuredPayload(weatherNetwork())
	require.True(t, ok)
	require.Equal(t, "Paris", s.Location)
	require.InDelta(t, 21.5, s.Temperature, 0.001)
	require.Equal(t, "sunny", s.Conditions)

	_, ok = extract.StructuredPayload(parts.NetworkPart{Output: json.RawMessage(`{"temperature":"hot","location":"x"}`)})
	require.False(t, ok)

	s, ok = extract.StructuredPayload(parts.NetworkPart{Steps: []parts.Step{{
		Task: &parts.Task{ToolResults: json.RawMessage(`[{"output":{"temperature":3,"conditions":"snow"}}]`)},
	}}})
	require.True(t, ok)
	require.Equal(t, "snow", s.Conditions)
}

func TestOutputText(t *testing.T) {
	require.Equal(t, "", extract.OutputText(nil))
	require.Equal(t, "", extract.OutputText(json.RawMessage(`null`)))
	require.Equal(t, "plain", extract.OutputText(json.RawMessage(`"plain"`)))
	require.Equal(t, "from result", extract.OutputText(json.RawMessage(`{"result":"from result"}`)))
	require.Equal(t, `{"a":1}`, extract.OutputText(json.RawMessage(`{ "a": 1 }`)))
	require.Equal(t, "", extract.OutputText(json.RawMessage(`{"a":`)))
}

func TestToolCalls(t *testing.T) {
	p := parts.DynamicToolPart{Output: json.RawMessage(`{"childMessages":[
		{"type":"text","content":"thinking"},
		{"type":"tool","toolName":"search","args":{"q":"paris"},"toolOutput":{"hits":1}},
		{"type":"tool","toolName":"fetch"}
	]}`)}
	calls := extract.ToolCalls(p)
	require.Len(t, calls, 2)
	require.Equal(t, "search", calls[0].Name)
	require.JSONEq(t, `{"q":"paris"}`, string(calls[0].Args))
	require.Equal(t, "fetch", calls[1].Name)
}

func TestBuildFallbackOrder(t *testing.T) {
	fb := extract.BuildFallback(weatherNetwork(), nil)
	require.Equal(t, "n1", fb.NetworkID)
	require.Equal(t, []extract.BlockKind{
		extract.BlockReason, extract.BlockStructured, extract.BlockTrace, extract.BlockSources, extract.BlockOutput,
	}, fb.Kinds())
	require.Equal(t, "The user asks about weather", fb.Blocks[0].Text)
	require.Equal(t, "https://meteo.example", fb.Blocks[3].Sources[0].URL)
	require.Equal(t, "It is sunny in Paris", fb.Blocks[4].Text)
}

func TestBuildFallbackTraceOnly(t *testing.T) {
	fb := extract.BuildFallback(parts.NetworkPart{ID: "n2", Status: parts.NetworkFinished}, nil)
	require.Equal(t, []extract.BlockKind{extract.BlockTrace}, fb.Kinds())
	require.Equal(t, "n2", fb.Blocks[0].Network.ID)
}
