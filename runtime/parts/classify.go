package parts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrNotObject indicates the record is not a JSON object.
	ErrNotObject = errors.New("part record is not a JSON object")
	// ErrMissingDiscriminant indicates the record has no type field.
	ErrMissingDiscriminant = errors.New("part record has no discriminant")
	// ErrInvalidDiscriminant indicates the type field is not a non-empty string.
	ErrInvalidDiscriminant = errors.New("part discriminant is not a non-empty string")
	// ErrEmptyToolName indicates a "tool-" discriminant without a tool name.
	ErrEmptyToolName = errors.New("tool part discriminant has no tool name")
)

type (
	// Classifier assigns wire records to part kinds. The zero value is not
	// usable; construct with NewClassifier.
	Classifier struct {
		schema *Schema
	}

	// ClassifierOption configures a Classifier.
	ClassifierOption func(*Classifier)

	// Result is the outcome of classifying one record. Part is always set:
	// recognized records decode to their variant, everything else to an
	// UnknownPart. Err explains a malformed outcome and is nil otherwise.
	Result struct {
		Kind Kind
		Type string
		Part Part
		Err  error
	}
)

var defaultClassifier = NewClassifier()

// NewClassifier returns a lenient classifier. Use WithSchema to additionally
// validate recognized records against a JSON Schema.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSchema makes records that violate schema classify as malformed.
func WithSchema(schema *Schema) ClassifierOption {
	return func(c *Classifier) {
		c.schema = schema
	}
}

// Classify classifies raw with the default lenient classifier.
func Classify(raw json.RawMessage) Result {
	return defaultClassifier.Classify(raw)
}

// KindOf returns the kind of raw as assigned by the default classifier.
func KindOf(raw json.RawMessage) Kind {
	return defaultClassifier.Classify(raw).Kind
}

// Classify assigns raw to exactly one kind. It never panics and never
// returns an error: data-shape problems surface as KindMalformed with Err
// set, and unknown discriminants as KindUnclassified.
func (c *Classifier) Classify(raw json.RawMessage) Result {
	if !gjson.ValidBytes(raw) {
		return malformed(raw, "", ErrNotObject)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return malformed(raw, "", ErrNotObject)
	}
	disc := doc.Get("type")
	if !disc.Exists() {
		disc = doc.Get("kind")
	}
	if !disc.Exists() {
		return malformed(raw, "", ErrMissingDiscriminant)
	}
	if disc.Type != gjson.String || disc.Str == "" {
		return malformed(raw, "", ErrInvalidDiscriminant)
	}
	typ := disc.Str

	var (
		part Part
		err  error
	)
	switch {
	case typ == TypeText:
		part, err = decodeText(raw)
	case typ == TypeReasoning:
		part, err = decodeReasoning(raw)
	case typ == TypeDynamicTool:
		part, err = decodeDynamicTool(raw)
	case typ == TypeNetwork:
		part, err = decodeNetwork(raw)
	case typ == TypeSourceURL || typ == TypeSource:
		part, err = decodeSource(raw)
	case strings.HasPrefix(typ, TypeToolPrefix):
		if typ == TypeToolPrefix {
			return malformed(raw, typ, ErrEmptyToolName)
		}
		part, err = decodeTool(raw, typ)
	default:
		return Result{
			Kind: KindUnclassified,
			Type: typ,
			Part: UnknownPart{Class: KindUnclassified, Type: typ, Raw: clone(raw)},
		}
	}
	if err != nil {
		return malformed(raw, typ, fmt.Errorf("decode %s part: %w", typ, err))
	}
	if c.schema != nil {
		if err := c.schema.Validate(raw); err != nil {
			return malformed(raw, typ, err)
		}
	}
	return Result{Kind: part.Kind(), Type: typ, Part: part}
}

// Decode classifies every record in raws. The returned slice has one part
// per record, in order.
func (c *Classifier) Decode(raws []json.RawMessage) []Part {
	if raws == nil {
		return nil
	}
	out := make([]Part, len(raws))
	for i, raw := range raws {
		out[i] = c.Classify(raw).Part
	}
	return out
}

func malformed(raw json.RawMessage, typ string, err error) Result {
	return Result{
		Kind: KindMalformed,
		Type: typ,
		Part: UnknownPart{Class: KindMalformed, Type: typ, Raw: clone(raw)},
		Err:  err,
	}
}

func clone(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
