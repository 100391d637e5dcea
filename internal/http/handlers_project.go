package http

import (
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
	"kakeibo/internal/sharing"
)

type (
	projectRequest struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	projectUpdateRequest struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}

	shareRequest struct {
		AllowEdit bool `json:"allowEdit"`
	}

	projectResponse struct {
		Project core.Project   `json:"project"`
		Access  sharing.Access `json:"access"`
	}

	shareResponse struct {
		Project core.Project `json:"project"`
		URL     string       `json:"url"`
	}
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if projects == nil {
		projects = []core.Project{}
	}
	NewJSONResponse().Body(map[string]any{"projects": projects}).Write(w)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.projects.CreateProject(r.Context(), userID(r.Context()),
		sanitizeInput(req.Name), sanitizeInput(req.Description))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).
		Header("Location", "/api/projects/"+p.ID).
		Body(projectResponse{Project: p, Access: sharing.ResolveFor(p, p.UserID, "")}).
		Write(w)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	access := sharing.ResolveFor(p, userID(r.Context()), shareToken(r))
	if !access.Granted {
		s.writeError(w, r, core.ErrAccessDenied)
		return
	}
	NewJSONResponse().Body(projectResponse{Project: p, Access: access}).Write(w)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req projectUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.projects.UpdateProject(r.Context(), userID(r.Context()), r.PathValue("id"), services.ProjectUpdate{
		Name:        sanitizePtr(req.Name),
		Description: sanitizePtr(req.Description),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(projectResponse{Project: p, Access: sharing.ResolveFor(p, p.UserID, "")}).Write(w)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.DeleteProject(r.Context(), userID(r.Context()), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	p, url, err := s.projects.Share(r.Context(), userID(r.Context()), r.PathValue("id"), req.AllowEdit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(shareResponse{Project: p, URL: url}).Write(w)
}

func (s *Server) handleUnshare(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.Unshare(r.Context(), userID(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(projectResponse{Project: p, Access: sharing.ResolveFor(p, p.UserID, "")}).Write(w)
}

func (s *Server) handleResolveShared(w http.ResponseWriter, r *http.Request) {
	p, access, err := s.projects.ResolveShared(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(projectResponse{Project: p, Access: access}).Write(w)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(s.projects.Status(op.Project.ID)).Write(w)
}

// open resolves the project of the route for the caller, writing the error
// response when access is not possible.
func (s *Server) open(w http.ResponseWriter, r *http.Request) (services.OpenedProject, bool) {
	op, err := s.projects.Open(r.Context(), userID(r.Context()), r.PathValue("id"), shareToken(r))
	if err != nil {
		s.writeError(w, r, err)
		return services.OpenedProject{}, false
	}
	return op, true
}
