package embedder

import "fmt"

// ProviderError reports a failed round trip to the embedding provider.
// It wraps the transport or API error so callers can distinguish provider
// failures from empty results.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedder: %s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("embedder: %s request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("embedder: %s request failed: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
