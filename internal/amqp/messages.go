package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// KindProjectData announces a saved project document.
	KindProjectData Kind = "project_data"
	// KindProjectList announces a created, updated or deleted project.
	KindProjectList Kind = "project_list"
)

type Kind string

// ChangeMessage is a lightweight announcement. Receivers reload the full
// document from the remote store; the digest lets them skip echoes.
type ChangeMessage struct {
	Kind      Kind      `json:"kind"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId,omitempty"`
	Origin    string    `json:"origin"`
	Digest    string    `json:"digest,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewProjectDataMessage(projectID, origin, digest string) *ChangeMessage {
	return &ChangeMessage{
		Kind:      KindProjectData,
		ProjectID: projectID,
		Origin:    origin,
		Digest:    digest,
		Timestamp: time.Now(),
	}
}

func NewProjectListMessage(userID, projectID, origin string) *ChangeMessage {
	return &ChangeMessage{
		Kind:      KindProjectList,
		ProjectID: projectID,
		UserID:    userID,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON parses and validates a message
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case KindProjectData, KindProjectList:
	default:
		return nil, fmt.Errorf("unknown message kind %q", msg.Kind)
	}
	if msg.ProjectID == "" && msg.UserID == "" {
		return nil, fmt.Errorf("message without project or user")
	}
	return &msg, nil
}
