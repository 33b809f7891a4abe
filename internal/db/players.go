package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Rune-Status/aj8/internal/model"
)

// Errors returned by PlayerStore.Load.
var (
	ErrPlayerNotFound     = errors.New("player not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrInvalidUsername    = errors.New("invalid username")
)

// Privilege levels, as sent in the login response.
const (
	PrivilegeStandard      = 0
	PrivilegeModerator     = 1
	PrivilegeAdministrator = 2
)

// SkillRecord is the saved state of one skill.
type SkillRecord struct {
	Level      int `json:"level"`
	Experience int `json:"experience"`
}

// PlayerRecord is the saved state of an account.
type PlayerRecord struct {
	Username  string         `json:"username"`
	Privilege int            `json:"privilege"`
	Members   bool           `json:"members"`
	Disabled  bool           `json:"disabled"`
	Position  model.Position `json:"position"`
	Skills    []SkillRecord  `json:"skills,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	LastLogin time.Time      `json:"last_login"`
}

// PlayerStoreOptions configure account creation.
type PlayerStoreOptions struct {
	// AutoRegister creates an account for an unknown username on first login.
	AutoRegister bool
	// Spawn is where new accounts start.
	Spawn model.Position
	// HashCost is the bcrypt cost for new passwords. Zero means bcrypt.DefaultCost.
	HashCost int
}

// PlayerStore loads and saves accounts.
type PlayerStore struct {
	db   *Database
	opts PlayerStoreOptions
}

// NewPlayerStore creates the players schema if needed.
func NewPlayerStore(database *Database, opts PlayerStoreOptions) (*PlayerStore, error) {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	ps := &PlayerStore{db: database, opts: opts}

	if err := ps.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate players database: %w", err)
	}
	return ps, nil
}

var playerMigrations = []Migration{
	{Version: 1, Name: "create players", SQL: `
		CREATE TABLE IF NOT EXISTS players (
			username_key TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			privilege INTEGER NOT NULL DEFAULT 0,
			members INTEGER NOT NULL DEFAULT 0,
			disabled INTEGER NOT NULL DEFAULT 0,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			height INTEGER NOT NULL DEFAULT 0,
			skills TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_login DATETIME DEFAULT CURRENT_TIMESTAMP
		);`},
	{Version: 2, Name: "index last login", SQL: `
		CREATE INDEX IF NOT EXISTS idx_players_last_login ON players(last_login);`},
}

func (ps *PlayerStore) migrate() error {
	return ps.db.Migrate(context.Background(), "players", playerMigrations)
}

// NormalizeUsername returns the key accounts are stored under: trimmed,
// lower case, with underscores read as spaces.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(username), "_", " "))
}

// Load verifies the password and returns the account. An unknown username
// is registered when AutoRegister is set and reported as ErrPlayerNotFound
// otherwise.
func (ps *PlayerStore) Load(ctx context.Context, username, password string) (*PlayerRecord, error) {
	key := NormalizeUsername(username)
	if key == "" {
		return nil, ErrInvalidUsername
	}

	rec, hash, err := ps.find(ctx, key)
	if errors.Is(err, ErrPlayerNotFound) {
		if !ps.opts.AutoRegister {
			return nil, err
		}
		return ps.register(ctx, key, username, password)
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if rec.Disabled {
		return nil, ErrAccountDisabled
	}

	rec.LastLogin = time.Now().UTC()
	if _, err := ps.db.ExecContext(ctx,
		"UPDATE players SET last_login = ? WHERE username_key = ?", rec.LastLogin, key); err != nil {
		log.Warn().Err(err).Str("player", key).Msg("failed to record last login")
	}
	return rec, nil
}

// Get returns an account without checking credentials.
func (ps *PlayerStore) Get(ctx context.Context, username string) (*PlayerRecord, error) {
	rec, _, err := ps.find(ctx, NormalizeUsername(username))
	return rec, err
}

func (ps *PlayerStore) find(ctx context.Context, key string) (*PlayerRecord, string, error) {
	var (
		rec     PlayerRecord
		hash    string
		members int
		disable int
		skills  string
	)
	err := ps.db.QueryRowContext(ctx, `
		SELECT username, password_hash, privilege, members, disabled, x, y, height, skills, created_at, last_login
		FROM players WHERE username_key = ?`, key).
		Scan(&rec.Username, &hash, &rec.Privilege, &members, &disable,
			&rec.Position.X, &rec.Position.Y, &rec.Position.Height, &skills, &rec.CreatedAt, &rec.LastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrPlayerNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load player %s: %w", key, err)
	}

	rec.Members = members == 1
	rec.Disabled = disable == 1
	if err := json.Unmarshal([]byte(skills), &rec.Skills); err != nil {
		return nil, "", fmt.Errorf("failed to decode skills of %s: %w", key, err)
	}
	return &rec, hash, nil
}

func (ps *PlayerStore) register(ctx context.Context, key, username, password string) (*PlayerRecord, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), ps.opts.HashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	rec := &PlayerRecord{
		Username:  strings.TrimSpace(username),
		Position:  ps.opts.Spawn,
		CreatedAt: now,
		LastLogin: now,
	}
	_, err = ps.db.ExecContext(ctx, `
		INSERT INTO players (username_key, username, password_hash, x, y, height, created_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key, rec.Username, string(hash), rec.Position.X, rec.Position.Y, rec.Position.Height, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to register player %s: %w", key, err)
	}

	log.Info().Str("player", key).Msg("registered new player")
	return rec, nil
}

// Save writes the mutable state of an existing account.
func (ps *PlayerStore) Save(ctx context.Context, rec *PlayerRecord) error {
	skills, err := json.Marshal(rec.Skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}

	res, err := ps.db.ExecContext(ctx, `
		UPDATE players SET privilege = ?, members = ?, x = ?, y = ?, height = ?, skills = ?
		WHERE username_key = ?`,
		rec.Privilege, boolToInt(rec.Members), rec.Position.X, rec.Position.Y, rec.Position.Height,
		string(skills), NormalizeUsername(rec.Username))
	if err != nil {
		return fmt.Errorf("failed to save player %s: %w", rec.Username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to save player %s: %w", rec.Username, ErrPlayerNotFound)
	}
	return nil
}

// SetPrivilege changes the privilege of an account.
func (ps *PlayerStore) SetPrivilege(ctx context.Context, username string, privilege int) error {
	return ps.update(ctx, username, "privilege", privilege)
}

// SetDisabled bans or unbans an account.
func (ps *PlayerStore) SetDisabled(ctx context.Context, username string, disabled bool) error {
	return ps.update(ctx, username, "disabled", boolToInt(disabled))
}

func (ps *PlayerStore) update(ctx context.Context, username, column string, value int) error {
	res, err := ps.db.ExecContext(ctx,
		"UPDATE players SET "+column+" = ? WHERE username_key = ?", value, NormalizeUsername(username))
	if err != nil {
		return fmt.Errorf("failed to update %s of %s: %w", column, username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// Count returns the number of registered accounts.
func (ps *PlayerStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := ps.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM players").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
