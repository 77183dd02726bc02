package moltbook

import "net/http"

// Result is the structured outcome of one API call. Data holds the decoded
// JSON body (nil when the body was not a JSON object).
type Result struct {
	Success    bool
	StatusCode int
	Err        string
	Data       map[string]any
}

func errResult(msg string) Result {
	return Result{Err: msg}
}

// RateLimited reports whether the server rejected the call for throttling.
func (r Result) RateLimited() bool {
	if r.StatusCode == http.StatusTooManyRequests {
		return true
	}
	_, hasRetrySec := r.Int("retry_after_seconds")
	_, hasRetryMin := r.Int("retry_after_minutes")
	return !r.Success && (hasRetrySec || hasRetryMin)
}

// Str returns a string field from the response body.
func (r Result) Str(key string) (string, bool) {
	return stringField(r.Data, key)
}

// Int returns a numeric field from the response body. JSON numbers decode as
// float64; ints are rounded toward zero.
func (r Result) Int(key string) (int, bool) {
	if r.Data == nil {
		return 0, false
	}
	switch v := r.Data[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// List returns an array field from the response body.
func (r Result) List(key string) []any {
	if r.Data == nil {
		return nil
	}
	v, _ := r.Data[key].([]any)
	return v
}

// Map returns an object field from the response body.
func (r Result) Map(key string) map[string]any {
	if r.Data == nil {
		return nil
	}
	v, _ := r.Data[key].(map[string]any)
	return v
}

func stringField(data map[string]any, key string) (string, bool) {
	if data == nil {
		return "", false
	}
	v, ok := data[key].(string)
	return v, ok
}
