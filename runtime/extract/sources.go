// Package extract derives display data from message parts: citable sources,
// inline citation markers, network routing reasons, structured payloads and
// the fallback blocks synthesized for network traces that produced no text.
//
// All functions are pure and never return errors. Malformed payloads simply
// contribute nothing.
package extract

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"goa.design/partview/runtime/parts"
)

// sourcePaths lists where nested source lists are found in tool and network
// outputs.
var sourcePaths = []string{"sources", "result.sources", "output.sources", "data.sources"}

// Sources collects the sources referenced by ps: standalone source parts and
// source lists nested in tool outputs, dynamic tool child outputs, network
// step outputs, task tool results and network outputs. Sources are
// deduplicated by URL, keeping the first occurrence, and returned in
// encounter order. Sources returns nil when no source is found.
func Sources(ps []parts.Part) []parts.SourcePart {
	c := &collector{seen: make(map[string]struct{})}
	for _, p := range ps {
		switch v := p.(type) {
		case parts.SourcePart:
			c.add(v)
		case parts.ToolPart:
			c.nested(v.Output)
		case parts.DynamicToolPart:
			c.nested(v.Output)
			for _, child := range v.ChildMessages() {
				c.nested(child.ToolOutput)
			}
		case parts.NetworkPart:
			c.network(v)
		}
	}
	return c.out
}

// NetworkSources collects the sources nested in a single network trace.
func NetworkSources(np parts.NetworkPart) []parts.SourcePart {
	c := &collector{seen: make(map[string]struct{})}
	c.network(np)
	return c.out
}

type collector struct {
	seen map[string]struct{}
	out  []parts.SourcePart
}

func (c *collector) add(s parts.SourcePart) {
	if s.URL == "" {
		return
	}
	if _, ok := c.seen[s.URL]; ok {
		return
	}
	c.seen[s.URL] = struct{}{}
	c.out = append(c.out, s)
}

func (c *collector) network(np parts.NetworkPart) {
	for _, step := range np.Steps {
		c.nested(step.Output)
		if step.Task != nil {
			c.nested(step.Task.ToolResults)
		}
	}
	c.nested(np.Output)
}

// nested scans raw for source lists. Arrays are scanned element by element
// so lists of tool results are covered.
func (c *collector) nested(raw json.RawMessage) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return
	}
	c.scan(gjson.ParseBytes(raw), 0)
}

func (c *collector) scan(doc gjson.Result, depth int) {
	if depth > 2 {
		return
	}
	if doc.IsArray() {
		doc.ForEach(func(_, item gjson.Result) bool {
			c.scan(item, depth+1)
			return true
		})
		return
	}
	if !doc.IsObject() {
		return
	}
	for _, path := range sourcePaths {
		list := doc.Get(path)
		if !list.IsArray() {
			continue
		}
		list.ForEach(func(_, item gjson.Result) bool {
			if s, ok := sourceFrom(item); ok {
				c.add(s)
			}
			return true
		})
	}
}

// sourceFrom normalizes a nested source entry: either a URL string or an
// object with a url field.
func sourceFrom(item gjson.Result) (parts.SourcePart, bool) {
	if item.Type == gjson.String {
		return parts.SourcePart{URL: item.Str}, item.Str != ""
	}
	if !item.IsObject() {
		return parts.SourcePart{}, false
	}
	url := item.Get("url")
	if url.Type != gjson.String || url.Str == "" {
		return parts.SourcePart{}, false
	}
	return parts.SourcePart{
		SourceID:    item.Get("id").String(),
		URL:         url.Str,
		Title:       item.Get("title").String(),
		Description: item.Get("description").String(),
		LastUpdated: item.Get("lastUpdated").String(),
	}, true
}
