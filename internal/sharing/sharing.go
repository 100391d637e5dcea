// Package sharing resolves share-link access to projects.
package sharing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/monthly"
)

// tokenBytes yields 24 url-safe base64 characters.
const tokenBytes = 18

// Access is what a caller may do with a project.
type Access struct {
	Granted  bool `json:"granted"`
	Editable bool `json:"editable"`
	Owner    bool `json:"owner"`
}

// Resolve grants access when the project is shared and the token matches;
// the grant is editable when the project allows edits.
func Resolve(p core.Project, token string) Access {
	if !p.IsShared || p.ShareToken == "" || token == "" {
		return Access{}
	}
	if subtle.ConstantTimeCompare([]byte(p.ShareToken), []byte(token)) != 1 {
		return Access{}
	}
	return Access{Granted: true, Editable: p.AllowEdit}
}

// ResolveFor gives owners full access and everyone else token access.
func ResolveFor(p core.Project, userID, token string) Access {
	if userID != "" && userID == p.UserID {
		return Access{Granted: true, Editable: true, Owner: true}
	}
	return Resolve(p, token)
}

// GenerateToken returns an unguessable url-safe token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Share marks the project as shared with token.
func Share(p core.Project, token string, allowEdit bool, now time.Time) core.Project {
	p.IsShared = true
	p.ShareToken = token
	p.AllowEdit = allowEdit
	p.SharedAt = &now
	p.LastModified = now
	return p
}

// Unshare revokes the share link.
func Unshare(p core.Project, now time.Time) core.Project {
	p.IsShared = false
	p.ShareToken = ""
	p.AllowEdit = false
	p.SharedAt = nil
	p.LastModified = now
	return p
}

// ShareURL builds the link handed out to collaborators.
func ShareURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/shared/" + token
}

// NewView scopes store to access: editable access gets the store itself,
// read access a read-only view.
func NewView(store *monthly.Store, access Access) (*monthly.Store, error) {
	if !access.Granted {
		return nil, core.ErrAccessDenied
	}
	if access.Editable {
		return store, nil
	}
	return store.ReadOnlyView(), nil
}
