package services

import (
	"context"
	"encoding/json"

	"kakeibo/internal/core"
)

// Ports for outbound adapters.
type (
	// RemoteStore is the durable document store shared by all instances.
	RemoteStore interface {
		LoadProjectData(ctx context.Context, projectID string) (data map[string]json.RawMessage, found bool, err error)
		SaveProjectData(ctx context.Context, projectID string, data core.ProjectData) error
		ListProjects(ctx context.Context, userID string) ([]core.Project, error)
		GetProject(ctx context.Context, id string) (core.Project, error)
		GetProjectByShareToken(ctx context.Context, token string) (core.Project, error)
		SaveProject(ctx context.Context, p core.Project) error
		DeleteProject(ctx context.Context, id string) error
	}

	// Pinger is implemented by remote stores that can report reachability.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// LocalCache holds the last serialised document of each project.
	LocalCache interface {
		Get(key string) ([]byte, bool)
		Set(key string, data []byte)
		Delete(key string)
	}

	// Announcer tells other instances about saved changes.
	Announcer interface {
		PublishProjectData(ctx context.Context, projectID, digest string) error
		PublishProjectList(ctx context.Context, userID, projectID string) error
	}
)
