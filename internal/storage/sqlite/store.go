// Package sqlite provides the SQLite-backed document store for users, rooms,
// files and chat history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/storage"
	"github.com/dkeye/CodeRoom/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists document state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, toMillis(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u       domain.User
		created int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created); err != nil {
		return nil, notFound(err, "user")
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

func (s *Store) CreateRoom(ctx context.Context, r *domain.Room) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO rooms (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Name, r.CreatedBy, toMillis(r.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("room %s: %w", r.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var (
		r       domain.Room
		created int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM rooms WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.CreatedBy, &created)
	if err != nil {
		return nil, notFound(err, "room")
	}
	r.CreatedAt = fromMillis(created)
	return &r, nil
}

// ListRoomsByUser returns the rooms userID created, newest first.
func (s *Store) ListRoomsByUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, created_by, created_at FROM rooms WHERE created_by = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Room, 0)
	for rows.Next() {
		var (
			r       domain.Room
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateFile(ctx context.Context, f *domain.File) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO files (id, name, content, language, room_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.Content, f.Language, f.RoomID, toMillis(f.CreatedAt), toMillis(f.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("file %s: %w", f.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

const fileColumns = `id, name, content, language, room_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(sc scanner) (*domain.File, error) {
	var (
		f                domain.File
		created, updated int64
	)
	if err := sc.Scan(&f.ID, &f.Name, &f.Content, &f.Language, &f.RoomID, &created, &updated); err != nil {
		return nil, err
	}
	f.CreatedAt = fromMillis(created)
	f.UpdatedAt = fromMillis(updated)
	return &f, nil
}

func (s *Store) GetFile(ctx context.Context, id domain.FileID) (*domain.File, error) {
	f, err := scanFile(s.sqlDB.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "file")
	}
	return f, nil
}

// ListFilesByRoom returns the files of a room, newest first.
func (s *Store) ListFilesByRoom(ctx context.Context, roomID domain.RoomID) ([]domain.File, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE room_id = ? ORDER BY created_at DESC, id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	out := make([]domain.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (s *Store) UpdateFileContent(ctx context.Context, id domain.FileID, content string) (*domain.File, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE files SET content = ?, updated_at = ? WHERE id = ?`,
		content, toMillis(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("update file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	return s.GetFile(ctx, id)
}

func (s *Store) DeleteFile(ctx context.Context, id domain.FileID) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateChatMessage(ctx context.Context, m *domain.ChatMessage) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO chat_messages (id, room_id, user_id, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.RoomID, m.UserID, m.Message, toMillis(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns the chat history of a room, oldest first.
func (s *Store) ListChatMessages(ctx context.Context, roomID domain.RoomID) ([]domain.ChatMessage, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, room_id, user_id, message, created_at FROM chat_messages WHERE room_id = ? ORDER BY created_at, rowid`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var (
			m       domain.ChatMessage
			created int64
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Message, &created); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.CreatedAt = fromMillis(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
