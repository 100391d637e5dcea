package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kakeibo/internal/core"
	applog "kakeibo/internal/log"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository stores project metadata and one JSON document per
// project month.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single connection serialises writers and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", core.ErrPersistence, err)
	}
	return nil
}

// LoadProjectData returns the stored month documents undecoded. found is
// false when nothing was ever saved for the project.
func (r *SQLiteRepository) LoadProjectData(ctx context.Context, projectID string) (map[string]json.RawMessage, bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT month_key, payload FROM project_months WHERE project_id = ? ORDER BY month_key`, projectID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: load project data: %w", core.ErrPersistence, err)
	}
	defer rows.Close()

	data := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, false, fmt.Errorf("%w: scan month: %w", core.ErrPersistence, err)
		}
		data[key] = json.RawMessage(payload)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: iterate months: %w", core.ErrPersistence, err)
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

// SaveProjectData replaces every month of the project in one transaction and
// touches the project's last modified time.
func (r *SQLiteRepository) SaveProjectData(ctx context.Context, projectID string, data core.ProjectData) error {
	now := r.now().UTC().Format(timeLayout)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", core.ErrPersistence, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_months WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("%w: clear months: %w", core.ErrPersistence, err)
	}
	for _, key := range core.SortedMonthKeys(data) {
		payload, err := json.Marshal(data[key].Clone())
		if err != nil {
			return fmt.Errorf("encode month %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO project_months (project_id, month_key, payload, updated_at) VALUES (?, ?, ?, ?)`,
			projectID, key, string(payload), now); err != nil {
			return fmt.Errorf("%w: insert month %s: %w", core.ErrPersistence, key, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET last_modified = ? WHERE id = ?`, now, projectID); err != nil {
		return fmt.Errorf("%w: touch project: %w", core.ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrPersistence, err)
	}

	slog.DebugContext(ctx, "Project data saved to SQLite",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldProjectID, projectID,
		"months", len(data))
	return nil
}

const projectColumns = `id, name, description, user_id, created_at, last_modified, is_shared, share_token, allow_edit, shared_at`

// ListProjects returns the user's projects, most recently modified first.
func (r *SQLiteRepository) ListProjects(ctx context.Context, userID string) ([]core.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY last_modified DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list projects: %w", core.ErrPersistence, err)
	}
	defer rows.Close()

	projects := make([]core.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate projects: %w", core.ErrPersistence, err)
	}
	return projects, nil
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (core.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (r *SQLiteRepository) GetProjectByShareToken(ctx context.Context, token string) (core.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE share_token = ? AND is_shared = 1`, token)
	return scanProject(row)
}

// SaveProject inserts or replaces the project metadata.
func (r *SQLiteRepository) SaveProject(ctx context.Context, p core.Project) error {
	var token, sharedAt sql.NullString
	if p.ShareToken != "" {
		token = sql.NullString{String: p.ShareToken, Valid: true}
	}
	if p.SharedAt != nil {
		sharedAt = sql.NullString{String: p.SharedAt.UTC().Format(timeLayout), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			user_id = excluded.user_id,
			last_modified = excluded.last_modified,
			is_shared = excluded.is_shared,
			share_token = excluded.share_token,
			allow_edit = excluded.allow_edit,
			shared_at = excluded.shared_at`,
		p.ID, p.Name, p.Description, p.UserID,
		p.CreatedAt.UTC().Format(timeLayout), p.LastModified.UTC().Format(timeLayout),
		p.IsShared, token, p.AllowEdit, sharedAt)
	if err != nil {
		return fmt.Errorf("%w: save project %s: %w", core.ErrPersistence, p.ID, err)
	}
	return nil
}

// DeleteProject removes the project and all of its months.
func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", core.ErrPersistence, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_months WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete months: %w", core.ErrPersistence, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete project: %w", core.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrProjectNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrPersistence, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (core.Project, error) {
	var (
		p                     core.Project
		createdAt, modifiedAt string
		token, sharedAt       sql.NullString
	)
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.UserID, &createdAt, &modifiedAt,
		&p.IsShared, &token, &p.AllowEdit, &sharedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, core.ErrProjectNotFound
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("%w: scan project: %w", core.ErrPersistence, err)
	}

	if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Project{}, fmt.Errorf("%w: project %s created_at: %w", core.ErrMalformedRemoteData, p.ID, err)
	}
	if p.LastModified, err = time.Parse(timeLayout, modifiedAt); err != nil {
		return core.Project{}, fmt.Errorf("%w: project %s last_modified: %w", core.ErrMalformedRemoteData, p.ID, err)
	}
	p.ShareToken = token.String
	if sharedAt.Valid {
		t, err := time.Parse(timeLayout, sharedAt.String)
		if err != nil {
			return core.Project{}, fmt.Errorf("%w: project %s shared_at: %w", core.ErrMalformedRemoteData, p.ID, err)
		}
		p.SharedAt = &t
	}
	return p, nil
}
