package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"goa.design/partview/runtime/dispatch"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/registry"
	"goa.design/partview/runtime/render"
	"goa.design/partview/runtime/telemetry"
)

const defaultStatus = parts.StatusReady

// viewRuntime bundles the classification, rendering and telemetry
// components shared by subcommands.
type viewRuntime struct {
	tel        telemetry.Set
	classifier *parts.Classifier
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
}

func newRuntime(cfg config) (*viewRuntime, error) {
	tel := telemetry.NewClueSet()
	reg := render.NewRegistry(registry.WithLogger(tel.Logger))
	if cfg.registryConfig != "" {
		o, err := registry.LoadOverrides(cfg.registryConfig)
		if err != nil {
			return nil, err
		}
		if err := reg.Apply(o); err != nil {
			return nil, fmt.Errorf("apply registry overrides: %w", err)
		}
	}
	var copts []parts.ClassifierOption
	if cfg.strict {
		copts = append(copts, parts.WithSchema(parts.MustCompileDefaultSchema()))
	}
	return &viewRuntime{
		tel:        tel,
		classifier: parts.NewClassifier(copts...),
		registry:   reg,
		dispatcher: dispatch.New(reg, dispatch.WithTelemetry(tel), dispatch.WithProduction(cfg.production)),
	}, nil
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("-in is required")
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// decodeConversation accepts either a JSON array of messages or an object
// holding them under "messages".
func decodeConversation(c *parts.Classifier, data []byte) (parts.Conversation, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("input is not valid JSON")
	}
	if r := gjson.GetBytes(data, "messages"); r.IsArray() {
		data = []byte(r.Raw)
	}
	conv, err := c.DecodeConversation(data)
	if err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return conv, nil
}

// readArrivals decodes one arrival per non-empty line.
func readArrivals(data []byte) ([]dispatch.Arrival, error) {
	var out []dispatch.Arrival
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var a dispatch.Arrival
		if err := json.Unmarshal([]byte(text), &a); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, a)
	}
	return out, sc.Err()
}

// writeOutput prints one line per dispatched part followed by the indented
// presentation.
func writeOutput(w io.Writer, out dispatch.Output) error {
	if !out.Rendered {
		_, err := fmt.Fprintf(w, "%s[%d] %s skip=%s\n", out.MessageID, out.Index, out.Kind, out.Skip)
		return err
	}
	if _, err := fmt.Fprintf(w, "%s[%d] %s %s\n", out.MessageID, out.Index, out.Kind, out.Key); err != nil {
		return err
	}
	b, ok := out.Presentation.(render.Block)
	if !ok {
		return nil
	}
	for _, line := range strings.Split(render.Format(b), "\n") {
		if _, err := fmt.Fprintln(w, "    "+line); err != nil {
			return err
		}
	}
	return nil
}

func printer(w io.Writer) dispatch.Sink {
	return dispatch.SinkFunc(func(_ context.Context, out dispatch.Output) error {
		return writeOutput(w, out)
	})
}
