package notify

import "context"

type EventKind string

const (
	EventMissionCompleted EventKind = "mission_completed"
	EventTokenExpired     EventKind = "token_expired"
	EventShareFailed      EventKind = "share_failed"
)

type Event struct {
	Kind         EventKind `json:"kind"`
	At           int64     `json:"atMs"`
	AccountIndex int       `json:"accountIndex"`
	TokenPrefix  string    `json:"tokenPrefix,omitempty"`
	MissionID    string    `json:"missionId,omitempty"`
	Message      string    `json:"message,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, evt Event)
}
