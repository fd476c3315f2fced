package llms

import "fmt"

// InferenceError reports a failed round trip to the model provider. The
// agent loop never absorbs it; it propagates to the loop's caller.
type InferenceError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *InferenceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llms: %s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("llms: %s request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("llms: %s request failed: %s", e.Provider, e.Message)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
