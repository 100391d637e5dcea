// Package memory is an in-process remote store for tests and single-node runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"kakeibo/internal/core"
)

type Store struct {
	mu       sync.Mutex
	projects map[string]core.Project
	data     map[string]map[string]json.RawMessage
	failErr  error
	saves    int
	now      func() time.Time
}

func New() *Store {
	return &Store{
		projects: make(map[string]core.Project),
		data:     make(map[string]map[string]json.RawMessage),
		now:      time.Now,
	}
}

// SetFailure makes every call fail with err until cleared with nil, which
// simulates the remote store going offline.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// PutRaw stores an undecoded month document, bypassing validation.
func (s *Store) PutRaw(projectID, key string, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[projectID] == nil {
		s.data[projectID] = make(map[string]json.RawMessage)
	}
	s.data[projectID][key] = raw
}

// Saves reports how many project data saves succeeded.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("ping")
}

func (s *Store) LoadProjectData(_ context.Context, projectID string) (map[string]json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("load project data"); err != nil {
		return nil, false, err
	}
	stored, ok := s.data[projectID]
	if !ok || len(stored) == 0 {
		return nil, false, nil
	}
	out := make(map[string]json.RawMessage, len(stored))
	for k, v := range stored {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out, true, nil
}

func (s *Store) SaveProjectData(_ context.Context, projectID string, data core.ProjectData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("save project data"); err != nil {
		return err
	}
	months := make(map[string]json.RawMessage, len(data))
	for key, m := range data {
		b, err := json.Marshal(m.Clone())
		if err != nil {
			return fmt.Errorf("encode month %s: %w", key, err)
		}
		months[key] = b
	}
	s.data[projectID] = months
	s.saves++
	if p, ok := s.projects[projectID]; ok {
		p.LastModified = s.now()
		s.projects[projectID] = p
	}
	return nil
}

func (s *Store) ListProjects(_ context.Context, userID string) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("list projects"); err != nil {
		return nil, err
	}
	out := make([]core.Project, 0)
	for _, p := range s.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.After(out[j].LastModified)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetProject(_ context.Context, id string) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("get project"); err != nil {
		return core.Project{}, err
	}
	p, ok := s.projects[id]
	if !ok {
		return core.Project{}, core.ErrProjectNotFound
	}
	return p, nil
}

func (s *Store) GetProjectByShareToken(_ context.Context, token string) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("get project by token"); err != nil {
		return core.Project{}, err
	}
	for _, p := range s.projects {
		if p.IsShared && p.ShareToken != "" && p.ShareToken == token {
			return p, nil
		}
	}
	return core.Project{}, core.ErrProjectNotFound
}

func (s *Store) SaveProject(_ context.Context, p core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("save project"); err != nil {
		return err
	}
	s.projects[p.ID] = p
	return nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("delete project"); err != nil {
		return err
	}
	if _, ok := s.projects[id]; !ok {
		return core.ErrProjectNotFound
	}
	delete(s.projects, id)
	delete(s.data, id)
	return nil
}

func (s *Store) fail(op string) error {
	if s.failErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", core.ErrPersistence, op, s.failErr)
}
