package extract

import (
	"regexp"
	"strconv"

	"goa.design/partview/runtime/parts"
)

type (
	// Segment is a piece of cited text: either a literal run (Citation nil)
	// or a citation marker whose Text is the literal marker, e.g. "[2]".
	Segment struct {
		Text     string
		Citation *Citation
	}

	// Citation is a parsed "[N]" marker. Source is nil when N does not
	// refer to a known source.
	Citation struct {
		Number int
		Source *parts.SourcePart
	}
)

// markerRE matches 1-indexed citation markers. The digit count is bounded
// so numbers always fit an int.
var markerRE = regexp.MustCompile(`\[(\d{1,9})\]`)

// ParseCitations splits text into literal and citation segments in order.
// Marker N resolves to sources[N-1]; out of range markers keep their literal
// text and a nil source. Concatenating the Text of all segments yields text.
// Empty literal runs are omitted, so the result is nil for empty text.
func ParseCitations(text string, sources []parts.SourcePart) []Segment {
	var segs []Segment
	last := 0
	for _, loc := range markerRE.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > last {
			segs = append(segs, Segment{Text: text[last:loc[0]]})
		}
		n, _ := strconv.Atoi(text[loc[2]:loc[3]])
		c := &Citation{Number: n}
		if n >= 1 && n <= len(sources) {
			src := sources[n-1]
			c.Source = &src
		}
		segs = append(segs, Segment{Text: text[loc[0]:loc[1]], Citation: c})
		last = loc[1]
	}
	if last < len(text) {
		segs = append(segs, Segment{Text: text[last:]})
	}
	return segs
}

// Cited returns the distinct sources resolved by segs in first-cited order.
func Cited(segs []Segment) []parts.SourcePart {
	var out []parts.SourcePart
	seen := make(map[string]struct{})
	for _, s := range segs {
		if s.Citation == nil || s.Citation.Source == nil {
			continue
		}
		if _, ok := seen[s.Citation.Source.URL]; ok {
			continue
		}
		seen[s.Citation.Source.URL] = struct{}{}
		out = append(out, *s.Citation.Source)
	}
	return out
}
