// Package db is the client's local store: the persisted login session and a
// cache of downloaded avatars. Messages are never written here.
package db

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"
)

var ErrNoRows = errors.New("no rows found")

type DB struct {
	conn *sql.DB
}

// Session is what survives a restart: the cookies for one backend.
type Session struct {
	Server    string
	Username  string
	Cookies   []*http.Cookie
	UpdatedAt time.Time
}

type Avatar struct {
	Name      string
	MediaType string
	Data      []byte
	Digest    string
	FetchedAt time.Time
}

// storedCookie keeps only the fields a jar needs back.
type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS session (
			server TEXT PRIMARY KEY,
			cookies TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS avatars (
			name TEXT PRIMARY KEY,
			media_type TEXT NOT NULL,
			data BLOB NOT NULL,
			fetched_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_avatars_fetched ON avatars(fetched_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return db.migrate()
}

// migrate adds columns introduced after the first release.
func (db *DB) migrate() error {
	if !db.columnExists("session", "username") {
		if _, err := db.conn.Exec("ALTER TABLE session ADD COLUMN username TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}

	if !db.columnExists("avatars", "digest") {
		if _, err := db.conn.Exec("ALTER TABLE avatars ADD COLUMN digest TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
		if err := db.backfillDigests(); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) columnExists(table, column string) bool {
	query := "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	var count int
	err := db.conn.QueryRow(query, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

func (db *DB) backfillDigests() error {
	rows, err := db.conn.Query("SELECT name, data FROM avatars WHERE digest = ''")
	if err != nil {
		return err
	}
	digests := make(map[string]string)
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			rows.Close()
			return err
		}
		digests[name] = Digest(data)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for name, digest := range digests {
		if _, err := db.conn.Exec("UPDATE avatars SET digest = ? WHERE name = ?", digest, name); err != nil {
			return err
		}
	}
	return nil
}

// Session methods

func (db *DB) SaveSession(s Session) error {
	stored := make([]storedCookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		stored = append(stored, storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.conn.Exec(
		`INSERT INTO session (server, cookies, username, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(server) DO UPDATE SET cookies = excluded.cookies,
			username = excluded.username, updated_at = excluded.updated_at`,
		s.Server, string(payload), s.Username, now,
	)
	return err
}

// LoadSession returns ErrNoRows when nothing was saved for server.
func (db *DB) LoadSession(server string) (*Session, error) {
	var payload, username, updated string
	err := db.conn.QueryRow(
		"SELECT cookies, username, updated_at FROM session WHERE server = ?", server,
	).Scan(&payload, &username, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	var stored []storedCookie
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}

	s := &Session{Server: server, Username: username}
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	for _, c := range stored {
		s.Cookies = append(s.Cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	return s, nil
}

func (db *DB) ClearSession(server string) error {
	_, err := db.conn.Exec("DELETE FROM session WHERE server = ?", server)
	return err
}

// Avatar methods

// Digest is the hex BLAKE2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutAvatar caches an image. When the stored digest already matches only the
// fetch time is refreshed; changed reports whether the bytes were written.
func (db *DB) PutAvatar(name, mediaType string, data []byte) (changed bool, err error) {
	digest := Digest(data)
	now := time.Now().UTC().Format(time.RFC3339)

	var current string
	err = db.conn.QueryRow("SELECT digest FROM avatars WHERE name = ?", name).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return false, err
	case current == digest:
		_, err = db.conn.Exec("UPDATE avatars SET fetched_at = ? WHERE name = ?", now, name)
		return false, err
	}

	_, err = db.conn.Exec(
		`INSERT INTO avatars (name, media_type, data, digest, fetched_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET media_type = excluded.media_type, data = excluded.data,
			digest = excluded.digest, fetched_at = excluded.fetched_at`,
		name, mediaType, data, digest, now,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (db *DB) GetAvatar(name string) (*Avatar, error) {
	a := &Avatar{Name: name}
	var fetched string
	err := db.conn.QueryRow(
		"SELECT media_type, data, digest, fetched_at FROM avatars WHERE name = ?", name,
	).Scan(&a.MediaType, &a.Data, &a.Digest, &fetched)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	a.FetchedAt, _ = time.Parse(time.RFC3339, fetched)

	if a.Digest != "" && a.Digest != Digest(a.Data) {
		return nil, fmt.Errorf("avatar %s: digest mismatch", name)
	}
	return a, nil
}

// PruneAvatars drops cache entries fetched before now-olderThan.
func (db *DB) PruneAvatars(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339)
	res, err := db.conn.Exec("DELETE FROM avatars WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
