package session

import (
	"encoding/json"

	"github.com/readwell/readalong/internal/align"
)

// Inbound control message types on the client text channel.
const (
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlStop   = "stop"
)

// controlMessage is a JSON text frame from the client.
type controlMessage struct {
	Type string `json:"type"`
}

func decodeControl(data []byte, msg *controlMessage) error {
	return json.Unmarshal(data, msg)
}

// AlignmentMessage reports the outcome of aligning one transcript chunk.
// Problems is the subset of Events with mismatch or skip kind, repeated so
// the client can highlight trouble words without re-filtering.
type AlignmentMessage struct {
	Type         string        `json:"type"`
	Events       []align.Event `json:"events"`
	CurrentIndex int           `json:"current_index"`
	TotalWords   int           `json:"total_words"`
	Problems     []align.Event `json:"problems"`
}

// CompleteMessage tells the client the reader reached the end of the text.
type CompleteMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorMessage carries a user-safe error description. Internal detail never
// crosses this boundary.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newAlignmentMessage(events []align.Event, cursor, totalWords int) AlignmentMessage {
	problems := make([]align.Event, 0)
	for _, e := range events {
		if e.Match == align.MatchMismatch || e.Match == align.MatchSkip {
			problems = append(problems, e)
		}
	}
	return AlignmentMessage{
		Type:         "alignment",
		Events:       events,
		CurrentIndex: cursor,
		TotalWords:   totalWords,
		Problems:     problems,
	}
}
