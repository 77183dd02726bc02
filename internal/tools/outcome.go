package tools

import (
	"encoding/json"
	"fmt"
	"sort"

	"moltbot/internal/moltbook"
)

// Outcome is the structured result of one tool execution. It is always
// serialized to JSON before being handed back to the decision engine, so
// handlers never need to worry about the wire shape.
type Outcome struct {
	Success     bool
	Err         string
	RateLimited bool
	Done        bool
	// Data holds extra payload fields merged into the JSON object
	// (posts, counts, wait hints, ...).
	Data map[string]any
}

func success(data map[string]any) Outcome {
	return Outcome{Success: true, Data: data}
}

func failure(format string, args ...any) Outcome {
	return Outcome{Err: fmt.Sprintf(format, args...)}
}

// fromResult converts an API result into an outcome, passing the decoded
// payload through unchanged.
func fromResult(res moltbook.Result) Outcome {
	return Outcome{
		Success:     res.Success,
		Err:         res.Err,
		RateLimited: res.RateLimited(),
		Data:        res.Data,
	}
}

// JSON renders the outcome as a single JSON object. Payload fields sit next
// to the fixed success/error/rate_limit/done keys; fixed keys win on clash.
func (o Outcome) JSON() string {
	m := make(map[string]any, len(o.Data)+4)
	for k, v := range o.Data {
		m[k] = v
	}
	m["success"] = o.Success
	if o.Err != "" {
		m["error"] = o.Err
	}
	if o.RateLimited {
		m["rate_limit"] = true
	}
	if o.Done {
		m["done"] = true
	}
	raw, err := json.Marshal(m)
	if err != nil {
		// Payloads come from decoded JSON so this should not happen;
		// drop the payload rather than the whole result.
		keys := make([]string, 0, len(o.Data))
		for k := range o.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		raw, _ = json.Marshal(map[string]any{
			"success": o.Success,
			"error":   fmt.Sprintf("unserializable tool payload (keys: %v)", keys),
		})
	}
	return string(raw)
}
