package gossip

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ryandielhenn/hera/pkg/state"
)

// Message is the body of a /_deltas response: origin name -> deltas. On the
// wire each delta is a [service, instance, payload, timestamp] tuple.
type Message map[string][]state.Delta

func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string][]tuple, len(m))
	for origin, deltas := range m {
		tuples := make([]tuple, len(deltas))
		for i, d := range deltas {
			tuples[i] = tuple(d)
		}
		out[origin] = tuples
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var in map[string][]tuple
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(Message, len(in))
	for origin, tuples := range in {
		deltas := make([]state.Delta, len(tuples))
		for i, t := range tuples {
			deltas[i] = state.Delta(t)
		}
		out[origin] = deltas
	}
	*m = out
	return nil
}

type tuple state.Delta

func (t tuple) MarshalJSON() ([]byte, error) {
	payload := t.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal([]any{t.Service, t.Instance, payload, t.Timestamp})
}

func (t *tuple) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 4 {
		return fmt.Errorf("delta tuple has %d elements, want 4", len(parts))
	}
	if err := json.Unmarshal(parts[0], &t.Service); err != nil {
		return fmt.Errorf("delta service: %w", err)
	}
	if err := json.Unmarshal(parts[1], &t.Instance); err != nil {
		return fmt.Errorf("delta instance: %w", err)
	}
	if err := json.Unmarshal(parts[3], &t.Timestamp); err != nil {
		return fmt.Errorf("delta timestamp: %w", err)
	}
	t.Payload = append(json.RawMessage(nil), parts[2]...)
	return nil
}

// EncodeCursors turns a since map into /_deltas query parameters.
func EncodeCursors(since map[string]int64) map[string]string {
	params := make(map[string]string, len(since))
	for origin, ts := range since {
		params[origin] = strconv.FormatInt(ts, 10)
	}
	return params
}

// DecodeCursors parses /_deltas query parameters. An empty value means 0.
func DecodeCursors(params map[string][]string) (map[string]int64, error) {
	since := make(map[string]int64, len(params))
	for origin, values := range params {
		var ts int64
		if len(values) > 0 && values[0] != "" {
			v, err := strconv.ParseInt(values[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cursor for %q: %w", origin, err)
			}
			ts = v
		}
		since[origin] = ts
	}
	return since, nil
}
