package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the payload version written by this build.
const MessageVersion = 1

// Message asks a worker to analyze one closed recording segment.
type Message struct {
	SegmentID   string `json:"segmentId"`
	RecordingID string `json:"recordingId,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
	EnqueuedAt  string `json:"enqueuedAt"`
	Version     int    `json:"version"`
}

// NewMessage stamps a message for segmentID with the current time and version.
func NewMessage(segmentID, recordingID, requestID string) Message {
	return Message{
		SegmentID:   segmentID,
		RecordingID: recordingID,
		RequestID:   requestID,
		EnqueuedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		Version:     MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
