package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"kakeibo/internal/amqp"
	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	applog "kakeibo/internal/log"
	"kakeibo/internal/monthly"
	"kakeibo/internal/sharing"
)

const projectListKeyPrefix = "projects-"

// ProjectUpdate holds optional project metadata changes.
type ProjectUpdate struct {
	Name        *string
	Description *string
}

// OpenedProject is a project together with the store view the caller may use.
type OpenedProject struct {
	Project core.Project
	Access  sharing.Access
	Store   *monthly.Store
}

// ProjectServiceOptions configures a ProjectService.
type ProjectServiceOptions struct {
	Local     LocalCache
	Announcer Announcer
	// Lists caches project lists per user; nil disables caching.
	Lists        *cache.LRUCache[[]core.Project]
	ShareBaseURL string
	IDFunc       func() string
	Now          func() time.Time
}

// ProjectService owns project metadata and the live monthly stores of
// opened projects.
type ProjectService struct {
	remote    RemoteStore
	local     LocalCache
	announcer Announcer
	processor *SyncProcessor
	lists     *cache.LRUCache[[]core.Project]
	shareBase string
	newID     func() string
	now       func() time.Time

	group  singleflight.Group
	mu     sync.Mutex
	stores map[string]*monthly.Store
}

func NewProjectService(remote RemoteStore, processor *SyncProcessor, opts ProjectServiceOptions) *ProjectService {
	if opts.IDFunc == nil {
		opts.IDFunc = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ProjectService{
		remote:    remote,
		local:     opts.Local,
		announcer: opts.Announcer,
		processor: processor,
		lists:     opts.Lists,
		shareBase: opts.ShareBaseURL,
		newID:     opts.IDFunc,
		now:       opts.Now,
		stores:    make(map[string]*monthly.Store),
	}
}

func (s *ProjectService) CreateProject(ctx context.Context, userID, name, description string) (core.Project, error) {
	now := s.now().UTC()
	p := core.Project{
		ID:           s.newID(),
		Name:         strings.TrimSpace(name),
		Description:  strings.TrimSpace(description),
		CreatedAt:    now,
		LastModified: now,
		UserID:       userID,
	}
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	if err := s.remote.SaveProject(ctx, p); err != nil {
		return core.Project{}, err
	}

	slog.InfoContext(ctx, "Project created",
		applog.FieldComponent, applog.ComponentProject,
		applog.FieldProjectID, p.ID, applog.FieldUserID, userID)
	s.projectsChanged(ctx, userID, p.ID)
	return p, nil
}

// ListProjects returns the user's projects, most recently modified first.
func (s *ProjectService) ListProjects(ctx context.Context, userID string) ([]core.Project, error) {
	key := projectListKeyPrefix + userID
	if s.lists != nil {
		if cached, ok := s.lists.Get(key); ok {
			return cached, nil
		}
	}
	projects, err := s.remote.ListProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.lists != nil {
		s.lists.Set(key, projects)
	}
	return projects, nil
}

func (s *ProjectService) GetProject(ctx context.Context, id string) (core.Project, error) {
	return s.remote.GetProject(ctx, id)
}

// UpdateProject changes project metadata. Only the owner may do so.
func (s *ProjectService) UpdateProject(ctx context.Context, userID, id string, upd ProjectUpdate) (core.Project, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return core.Project{}, err
	}
	if upd.Name != nil {
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		p.Description = strings.TrimSpace(*upd.Description)
	}
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	p.LastModified = s.now().UTC()
	if err := s.remote.SaveProject(ctx, p); err != nil {
		return core.Project{}, err
	}
	s.projectsChanged(ctx, userID, id)
	return p, nil
}

// DeleteProject removes the project, its month documents and its local copy.
// Handles on the project's store still held by callers stop accepting
// mutations before the remote documents go away.
func (s *ProjectService) DeleteProject(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}

	s.mu.Lock()
	st, ok := s.stores[id]
	delete(s.stores, id)
	s.mu.Unlock()
	if ok {
		st.Close()
	}
	if s.processor != nil {
		s.processor.Detach(id)
	} else if s.local != nil {
		s.local.Delete(cache.ProjectKey(id))
	}

	if err := s.remote.DeleteProject(ctx, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Project deleted",
		applog.FieldComponent, applog.ComponentProject,
		applog.FieldProjectID, id, applog.FieldUserID, userID)
	s.projectsChanged(ctx, userID, id)
	return nil
}

// Share enables the share link of an owned project, issuing a new token.
// It returns the updated project and the link.
func (s *ProjectService) Share(ctx context.Context, userID, id string, allowEdit bool) (core.Project, string, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return core.Project{}, "", err
	}
	token, err := sharing.GenerateToken()
	if err != nil {
		return core.Project{}, "", err
	}
	p = sharing.Share(p, token, allowEdit, s.now().UTC())
	if err := s.remote.SaveProject(ctx, p); err != nil {
		return core.Project{}, "", err
	}

	slog.InfoContext(ctx, "Project shared",
		applog.FieldComponent, applog.ComponentProject,
		applog.FieldProjectID, id, "allow_edit", allowEdit)
	s.projectsChanged(ctx, userID, id)
	return p, sharing.ShareURL(s.shareBase, token), nil
}

// Unshare revokes the share link. Existing tokens stop resolving at once.
func (s *ProjectService) Unshare(ctx context.Context, userID, id string) (core.Project, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return core.Project{}, err
	}
	p = sharing.Unshare(p, s.now().UTC())
	if err := s.remote.SaveProject(ctx, p); err != nil {
		return core.Project{}, err
	}
	s.projectsChanged(ctx, userID, id)
	return p, nil
}

// ResolveShared looks a share token up. Unknown or revoked tokens yield
// ErrAccessDenied.
func (s *ProjectService) ResolveShared(ctx context.Context, token string) (core.Project, sharing.Access, error) {
	if token == "" {
		return core.Project{}, sharing.Access{}, core.ErrAccessDenied
	}
	p, err := s.remote.GetProjectByShareToken(ctx, token)
	if errors.Is(err, core.ErrProjectNotFound) {
		return core.Project{}, sharing.Access{}, core.ErrAccessDenied
	}
	if err != nil {
		return core.Project{}, sharing.Access{}, err
	}
	access := sharing.Resolve(p, token)
	if !access.Granted {
		return core.Project{}, sharing.Access{}, core.ErrAccessDenied
	}
	return p, access, nil
}

// Open returns the project's store as userID (optionally presenting a share
// token) may use it: the shared store for editors, a read-only view otherwise.
func (s *ProjectService) Open(ctx context.Context, userID, projectID, token string) (OpenedProject, error) {
	p, err := s.remote.GetProject(ctx, projectID)
	if err != nil {
		return OpenedProject{}, err
	}
	access := sharing.ResolveFor(p, userID, token)
	if !access.Granted {
		return OpenedProject{}, core.ErrAccessDenied
	}

	store, err := s.store(ctx, projectID)
	if err != nil {
		return OpenedProject{}, err
	}
	view, err := sharing.NewView(store, access)
	if err != nil {
		return OpenedProject{}, err
	}
	return OpenedProject{Project: p, Access: access, Store: view}, nil
}

// HandleAnnouncement applies a change announced by another instance.
func (s *ProjectService) HandleAnnouncement(ctx context.Context, msg *amqp.ChangeMessage) error {
	switch msg.Kind {
	case amqp.KindProjectData:
		s.mu.Lock()
		_, open := s.stores[msg.ProjectID]
		s.mu.Unlock()
		if open && s.processor != nil {
			s.processor.HandleRemoteUpdate(msg.ProjectID, msg.Digest)
		}
	case amqp.KindProjectList:
		s.invalidateLists(msg.UserID)
	default:
		return fmt.Errorf("unsupported change kind %q", msg.Kind)
	}

	slog.DebugContext(ctx, "Change announcement handled",
		applog.FieldComponent, applog.ComponentProject,
		"kind", msg.Kind, applog.FieldProjectID, msg.ProjectID, applog.FieldOrigin, msg.Origin)
	return nil
}

// Status reports the sync state of a project.
func (s *ProjectService) Status(projectID string) SyncStatus {
	if s.processor == nil {
		return SyncStatus{ProjectID: projectID, Online: true}
	}
	return s.processor.Status(projectID)
}

func (s *ProjectService) owned(ctx context.Context, userID, id string) (core.Project, error) {
	p, err := s.remote.GetProject(ctx, id)
	if err != nil {
		return core.Project{}, err
	}
	if !sharing.ResolveFor(p, userID, "").Owner {
		return core.Project{}, core.ErrAccessDenied
	}
	return p, nil
}

// store returns the live store of the project, loading it once for all
// concurrent callers.
func (s *ProjectService) store(ctx context.Context, projectID string) (*monthly.Store, error) {
	s.mu.Lock()
	st, ok := s.stores[projectID]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	v, err, _ := s.group.Do(projectID, func() (any, error) {
		s.mu.Lock()
		st, ok := s.stores[projectID]
		s.mu.Unlock()
		if ok {
			return st, nil
		}

		// shared by every caller collapsed into this load
		st, err := s.load(context.WithoutCancel(ctx), projectID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.stores[projectID] = st
		s.mu.Unlock()
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*monthly.Store), nil
}

// load merges the local copy with the remote document, remote winning per
// month. An unreachable remote store leaves the local copy in charge.
func (s *ProjectService) load(ctx context.Context, projectID string) (*monthly.Store, error) {
	var local core.ProjectData
	if s.local != nil {
		if b, ok := s.local.Get(cache.ProjectKey(projectID)); ok {
			data, rejected, err := monthly.DecodeSnapshot(b)
			if err != nil {
				slog.WarnContext(ctx, "Discarding unreadable local copy",
					applog.FieldComponent, applog.ComponentProject,
					applog.FieldProjectID, projectID, applog.FieldError, err)
			} else {
				LogRejections(ctx, projectID, rejected)
				local = data
			}
		}
	}

	var remote core.ProjectData
	raw, found, err := s.remote.LoadProjectData(ctx, projectID)
	switch {
	case err != nil && local == nil:
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	case err != nil:
		slog.WarnContext(ctx, "Remote store unavailable, using local copy",
			applog.FieldComponent, applog.ComponentProject,
			applog.FieldProjectID, projectID, applog.FieldError, err)
	case found:
		var rejected []monthly.Rejection
		remote, rejected = monthly.ParseSnapshot(raw)
		LogRejections(ctx, projectID, rejected)
	default:
		remote = core.ProjectData{}
	}

	opts := monthly.Options{ProjectID: projectID, Now: s.now}
	if s.processor != nil {
		opts.Persister = s.processor
	}
	st := monthly.New(monthly.Merge(local, remote), opts)

	if s.processor != nil {
		s.processor.Attach(st, remote)
		if remote == nil || len(st.AvailableMonths()) != len(remote) {
			// local-only months have to reach the remote store
			s.processor.Schedule(projectID, st.Snapshot())
		}
	}

	slog.DebugContext(ctx, "Project store opened",
		applog.FieldComponent, applog.ComponentProject,
		applog.FieldProjectID, projectID, "months", len(st.AvailableMonths()))
	return st, nil
}

func (s *ProjectService) projectsChanged(ctx context.Context, userID, projectID string) {
	s.invalidateLists(userID)
	if s.announcer == nil {
		return
	}
	if err := s.announcer.PublishProjectList(ctx, userID, projectID); err != nil {
		slog.WarnContext(ctx, "Failed to announce project list change",
			applog.FieldComponent, applog.ComponentProject,
			applog.FieldProjectID, projectID, applog.FieldError, err)
	}
}

func (s *ProjectService) invalidateLists(userID string) {
	if s.lists == nil {
		return
	}
	if userID == "" {
		s.lists.DeletePrefix(projectListKeyPrefix)
		return
	}
	s.lists.Delete(projectListKeyPrefix + userID)
}
