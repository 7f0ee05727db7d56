package models

import "time"

// No-activity reasons.
const (
	ReasonNoVoiceActivity = "no voice activity"
	ReasonNoSpeech        = "no speech recognized"
)

// Message types for non-result frames.
const (
	TypePong        = "pong"
	TypeUnsupported = "unsupported"
	TypeError       = "error"
)

// DetectedResult is sent when a window's text matched.
type DetectedResult struct {
	Detected   bool      `json:"detected"`
	Text       string    `json:"text"`
	Pattern    string    `json:"pattern"`
	Patterns   []string  `json:"patterns"`
	Confidence float64   `json:"confidence"`
	Energy     float64   `json:"energy"`
	Timestamp  time.Time `json:"timestamp"`
}

// CleanResult is sent when a window was transcribed and nothing matched.
type CleanResult struct {
	Detected  bool      `json:"detected"`
	Text      string    `json:"text"`
	Energy    float64   `json:"energy"`
	Timestamp time.Time `json:"timestamp"`
}

// NoActivityResult is sent when a window was gated out or produced no text.
type NoActivityResult struct {
	Detected bool    `json:"detected"`
	Energy   float64 `json:"energy"`
	Message  string  `json:"message"`
}

// ControlMessage answers text frames and reports errors.
type ControlMessage struct {
	Type    string `json:"type"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewDetectedResult builds the client message for ev.
func NewDetectedResult(ev DetectionEvent) DetectedResult {
	return DetectedResult{
		Detected:   true,
		Text:       ev.Text,
		Pattern:    ev.Pattern,
		Patterns:   ev.Patterns,
		Confidence: ev.Confidence,
		Energy:     ev.Energy,
		Timestamp:  ev.Timestamp,
	}
}

// Pong acknowledges a liveness probe.
func Pong() ControlMessage {
	return ControlMessage{Type: TypePong}
}

// Unsupported reports an unrecognized control message.
func Unsupported(message string) ControlMessage {
	return ControlMessage{Type: TypeUnsupported, Message: message}
}

// Error reports a failure. The connection is closed after it is sent.
func Error(err string) ControlMessage {
	return ControlMessage{Type: TypeError, Error: err}
}
