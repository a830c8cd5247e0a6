package domain

// GenerationStatus enumerates image-generation request states.
type GenerationStatus string

const (
	GenerationPending GenerationStatus = "pending"
	GenerationDone    GenerationStatus = "done"
	GenerationError   GenerationStatus = "error"
	// GenerationUnknown marks a poll response whose shape could not be
	// interpreted; the poller logs it and keeps waiting.
	GenerationUnknown GenerationStatus = "unknown"
)

// GenerationUpdate is one decoded poll response for an in-flight
// image-generation request. Ephemeral; discarded once a terminal
// status is observed.
type GenerationUpdate struct {
	RequestID    string
	Status       GenerationStatus
	ResultURL    string
	ErrorMessage string
}

// Terminal reports whether polling can stop.
func (u GenerationUpdate) Terminal() bool {
	return u.Status == GenerationDone || u.Status == GenerationError
}
