package model

const (
	EnvelopeSuccess = "success"
	EnvelopeError   = "error"
)

// Envelope is the response shape shared by the HTTP API, the daemon protocol
// and realtime events.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Success(message string, data any) Envelope {
	return Envelope{Status: EnvelopeSuccess, Message: message, Data: data}
}

func Failure(message, code string) Envelope {
	return Envelope{Status: EnvelopeError, Message: message, Error: code}
}
