package parts

import (
	"encoding/json"
	"slices"
)

type (
	// Message is one chat message made of ordered parts.
	Message struct {
		ID       string
		Role     string
		Parts    []Part
		Metadata *Metadata
	}

	// Metadata carries message-level annotations. A message with Mode
	// "network" and a CompletionResult is an internal completion check.
	Metadata struct {
		Mode             string          `json:"mode,omitempty"`
		CompletionResult json.RawMessage `json:"completionResult,omitempty"`
	}

	// Conversation is an ordered list of messages.
	Conversation []Message

	messageWire struct {
		ID       string            `json:"id"`
		Role     string            `json:"role"`
		Parts    []json.RawMessage `json:"parts"`
		Metadata *Metadata         `json:"metadata,omitempty"`
	}
)

// ModeNetwork is the metadata mode of messages emitted by an agent network.
const ModeNetwork = "network"

// MarshalJSON encodes the message and its parts in wire form.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{ID: m.ID, Role: m.Role, Metadata: m.Metadata, Parts: make([]json.RawMessage, 0, len(m.Parts))}
	for _, p := range m.Parts {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		w.Parts = append(w.Parts, raw)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the message, classifying each part with the default
// classifier. Unrecognized parts are kept as UnknownPart.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.ID = w.ID
	m.Role = w.Role
	m.Metadata = w.Metadata
	m.Parts = defaultClassifier.Decode(w.Parts)
	return nil
}

// DecodeConversation decodes a JSON array of messages, classifying parts
// with c.
func (c *Classifier) DecodeConversation(data []byte) (Conversation, error) {
	var wires []messageWire
	if err := json.Unmarshal(data, &wires); err != nil {
		return nil, err
	}
	conv := make(Conversation, len(wires))
	for i, w := range wires {
		conv[i] = Message{ID: w.ID, Role: w.Role, Metadata: w.Metadata, Parts: c.Decode(w.Parts)}
	}
	return conv, nil
}

// DecodeMessage decodes a single JSON message, classifying parts with c.
func (c *Classifier) DecodeMessage(data []byte) (Message, error) {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, err
	}
	return Message{ID: w.ID, Role: w.Role, Metadata: w.Metadata, Parts: c.Decode(w.Parts)}, nil
}

// IsCompletionCheck reports whether m is an internal network completion
// check.
func (m Message) IsCompletionCheck() bool {
	return m.Metadata != nil && m.Metadata.Mode == ModeNetwork && len(m.Metadata.CompletionResult) > 0 &&
		string(m.Metadata.CompletionResult) != "null"
}

// HasVisibleText reports whether m has a text part that renders: non-blank
// and not an internal network marker.
func (m Message) HasVisibleText() bool {
	return slices.ContainsFunc(m.Parts, func(p Part) bool {
		t, ok := p.(TextPart)
		return ok && Displayable(t) && !IsNetworkMarker(t.Text)
	})
}

// Clone returns a copy of m whose part slice can be modified independently.
// Part values are copied; their raw JSON payloads are shared.
func (m Message) Clone() Message {
	out := m
	out.Parts = slices.Clone(m.Parts)
	if m.Metadata != nil {
		md := *m.Metadata
		out.Metadata = &md
	}
	return out
}

// Clone returns a copy of c whose messages can be modified independently.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	for i, m := range c {
		out[i] = m.Clone()
	}
	return out
}
