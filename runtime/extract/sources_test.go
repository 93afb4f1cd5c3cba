package extract_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/partview/runtime/extract"
	"goa.design/partview/runtime/parts"
)

func TestSourcesNilWhenNone(t *testing.T) {
	require.Nil(t, extract.Sources(nil))
	require.Nil(t, extract.Sources([]parts.Part{parts.TextPart{Text: "hello"}}))
	require.Nil(t, extract.Sources([]parts.Part{parts.ToolPart{ToolType: "x", Output: json.RawMessage(`{"sources":[]}`)}}))
}

func TestSourcesDedupeFirstSeen(t *testing.T) {
	ps := []parts.Part{
		parts.SourcePart{SourceID: "s1", URL: "https://a.example", Title: "A standalone"},
		parts.ToolPart{
			ToolType: "search",
			Output:   json.RawMessage(`{"sources":[{"url":"https://a.example","title":"A nested"},{"url":"https://b.example","title":"B"}]}`),
		},
		parts.NetworkPart{
			Steps: []parts.Step{
				{Output: json.RawMessage(`{"result":{"sources":[{"url":"https://c.example"}]}}`)},
				{Task: &parts.Task{ToolResults: json.RawMessage(`[{"output":{"sources":["https://d.example","https://b.example"]}}]`)}},
			},
			Output: json.RawMessage(`{"data":{"sources":[{"url":"https://e.example","lastUpdated":"2024-01-01"}]}}`),
		},
		parts.DynamicToolPart{
			ToolName: "research",
			Output:   json.RawMessage(`{"childMessages":[{"type":"tool","toolName":"web","toolOutput":{"sources":[{"url":"https://f.example"}]}}]}`),
		},
		parts.SourcePart{URL: ""},
	}
	got := extract.Sources(ps)
	urls := make([]string, len(got))
	for i, s := range got {
		urls[i] = s.URL
	}
	require.Equal(t, []string{
		"https://a.example", "https://b.example", "https://c.example",
		"https://d.example", "https://e.example", "https://f.example",
	}, urls)
	require.Equal(t, "A standalone", got[0].Title)
	require.Equal(t, "2024-01-01", got[4].LastUpdated)
}

func TestSourcesIgnoreMalformedPayloads(t *testing.T) {
	ps := []parts.Part{
		parts.ToolPart{Output: json.RawMessage(`{"sources":`)},
		parts.ToolPart{Output: json.RawMessage(`{"sources":"https://x.example"}`)},
		parts.ToolPart{Output: json.RawMessage(`{"sources":[42,{"title":"no url"}]}`)},
	}
	require.Nil(t, extract.Sources(ps))
}
