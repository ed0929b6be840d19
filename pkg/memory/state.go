package memory

import "fmt"

// EmbeddingStatus is the persisted embedding lifecycle status of a Record.
type EmbeddingStatus string

const (
	StatusPending   EmbeddingStatus = "pending"
	StatusCompleted EmbeddingStatus = "completed"
	StatusFailed    EmbeddingStatus = "failed"
)

// ParseEmbeddingStatus validates a status read from storage.
func ParseEmbeddingStatus(s string) (EmbeddingStatus, error) {
	switch st := EmbeddingStatus(s); st {
	case StatusPending, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown embedding status %q", ErrInvalidArgument, s)
	}
}

// EmbeddingState is the retry bookkeeping of a record. Transitions go through
// its methods only so exhaustion is decided in one place.
type EmbeddingState struct {
	Status     EmbeddingStatus `json:"embedding_status"`
	RetryCount int             `json:"retry_count"`
}

// Succeed moves the state to completed. RetryCount is kept as history.
func (s EmbeddingState) Succeed() EmbeddingState {
	s.Status = StatusCompleted
	return s
}

// Fail records one failed attempt. The state stays pending while attempts
// remain and becomes failed once RetryCount reaches maxAttempts. Completed
// and exhausted states are returned unchanged.
func (s EmbeddingState) Fail(maxAttempts int) EmbeddingState {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if s.Status == StatusCompleted || s.Exhausted(maxAttempts) {
		return s
	}

	s.RetryCount++
	if s.RetryCount >= maxAttempts {
		s.Status = StatusFailed
		return s
	}
	s.Status = StatusPending
	return s
}

// Unsupported marks the record failed without consuming retry budget. Used
// when the vector capability is absent: a later process that has the
// capability may still pick the record up.
func (s EmbeddingState) Unsupported() EmbeddingState {
	s.Status = StatusFailed
	return s
}

// Retryable reports whether another automatic attempt is allowed.
func (s EmbeddingState) Retryable(maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return s.Status != StatusCompleted && s.RetryCount < maxAttempts
}

// Exhausted reports whether the retry budget is spent. Exhausted records are
// never retried automatically.
func (s EmbeddingState) Exhausted(maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return s.Status == StatusFailed && s.RetryCount >= maxAttempts
}
