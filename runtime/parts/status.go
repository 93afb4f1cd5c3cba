package parts

// Status is the lifecycle status of a chat stream.
type Status string

const (
	// StatusSubmitted means the request was sent and no data arrived yet.
	StatusSubmitted Status = "submitted"
	// StatusStreaming means parts are arriving.
	StatusStreaming Status = "streaming"
	// StatusReady means the stream settled successfully.
	StatusReady Status = "ready"
	// StatusError means the stream settled with an error.
	StatusError Status = "error"
)

// Streaming reports whether s denotes an actively streaming response.
func (s Status) Streaming() bool { return s == StatusStreaming }

// Settled reports whether the stream finished, successfully or not.
func (s Status) Settled() bool { return s == StatusReady || s == StatusError }

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusStreaming, StatusReady, StatusError:
		return true
	}
	return false
}
