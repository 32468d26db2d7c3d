package models

import "time"

// RunEvent is published on the message bus once a bot run has finished.
type RunEvent struct {
	Date      string            `json:"date"`
	State     string            `json:"state"`
	Countries int               `json:"countries"`
	ImageURL  string            `json:"image_url,omitempty"`
	PostIDs   map[string]string `json:"post_ids,omitempty"`
	Error     string            `json:"error,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
}
