// Package models defines the detection event and the messages sent to
// streaming clients.
package models

import "time"

// DetectionEventType is the eventType of published detections.
const DetectionEventType = "profanity.detection"

// DetectionEvent is one window in which at least one pattern matched.
type DetectionEvent struct {
	EventType   string    `json:"eventType" msgpack:"eventType"`
	SessionID   string    `json:"sessionId" msgpack:"sessionId"`
	UserID      string    `json:"userId" msgpack:"userId"`
	Text        string    `json:"text" msgpack:"text"`
	Pattern     string    `json:"pattern" msgpack:"pattern"`
	Patterns    []string  `json:"patterns" msgpack:"patterns"`
	Confidence  float64   `json:"confidence" msgpack:"confidence"`
	Energy      float64   `json:"energy" msgpack:"energy"`
	Sensitivity int       `json:"sensitivity" msgpack:"sensitivity"`
	Timestamp   time.Time `json:"timestamp" msgpack:"timestamp"`
}
