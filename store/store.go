// Package store is the relational implementation of the client, user, grant and token
// repositories. SQLite (modernc.org/sqlite) and Postgres (lib/pq) share the same SQL;
// placeholders are written as ? and rebound for Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/grants"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/token"
	"github.com/jrsteele09/mcp-oauth-server/users"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// timeLayout is fixed width and always UTC, so text comparison orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Options struct {
	Driver Driver
	DSN    string // file path for SQLite, connection string for Postgres
}

type Store struct {
	db     *sql.DB
	driver Driver
}

// Open connects, creates the schema if needed and applies migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		db, err = openSQLite(opts.DSN)
	case DriverPostgres:
		db, err = sql.Open("postgres", opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q: %w", opts.Driver, errors.ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: db, driver: opts.Driver}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info().Str("driver", string(opts.Driver)).Msg("store initialized")
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time keeps the conditional revoke updates strictly serialized.
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Clients, Users, Grants and Tokens expose the store through the domain repo interfaces.
func (s *Store) Clients() clients.Repo { return &clientRepo{s} }
func (s *Store) Users() users.Repo     { return &userRepo{s} }
func (s *Store) Grants() grants.Repo   { return &grantRepo{s} }
func (s *Store) Tokens() token.Repo    { return &tokenRepo{s} }

// PurgeExpired removes expired grants and token rows whose access half has expired and
// whose refresh half, if any, is older than refreshLifetime.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time, refreshLifetime time.Duration) (grantsDeleted, tokensDeleted int64, err error) {
	grantsDeleted, err = s.Grants().DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	tokensDeleted, err = s.Tokens().DeleteExpired(ctx, now, now.Add(-refreshLifetime))
	if err != nil {
		return grantsDeleted, 0, err
	}
	return grantsDeleted, tokensDeleted, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS oauth_applications (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			uid TEXT NOT NULL,
			secret TEXT NOT NULL,
			redirect_uri TEXT NOT NULL,
			scopes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_oauth_applications_uid
			ON oauth_applications(uid);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_oauth_applications_name
			ON oauth_applications(name);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

		CREATE TABLE IF NOT EXISTS oauth_access_grants (
			id TEXT PRIMARY KEY,
			application_id TEXT NOT NULL REFERENCES oauth_applications(id),
			user_id TEXT NOT NULL REFERENCES users(id),
			token TEXT NOT NULL,
			token_type TEXT NOT NULL,
			redirect_uri TEXT NOT NULL,
			scopes TEXT NOT NULL DEFAULT '',
			code_challenge TEXT NOT NULL DEFAULT '',
			code_challenge_method TEXT NOT NULL DEFAULT '',
			expires_at TEXT NOT NULL,
			revoked_at TEXT,
			created_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_oauth_access_grants_token
			ON oauth_access_grants(token);

	` + tokensTable + tokensIndexes
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// refresh_token is nullable: a token row may carry no refresh half. Unique indexes on both
// drivers admit any number of NULLs.
const tokensTable = `
		CREATE TABLE IF NOT EXISTS oauth_access_tokens (
			id TEXT PRIMARY KEY,
			application_id TEXT NOT NULL REFERENCES oauth_applications(id),
			user_id TEXT NOT NULL REFERENCES users(id),
			token TEXT NOT NULL,
			refresh_token TEXT,
			scopes TEXT NOT NULL DEFAULT '',
			expires_at TEXT NOT NULL,
			revoked_at TEXT,
			created_at TEXT NOT NULL
		);
`

const tokensIndexes = `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_oauth_access_tokens_token
			ON oauth_access_tokens(token);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_oauth_access_tokens_refresh
			ON oauth_access_tokens(refresh_token);
`

// applicationMetadataColumns were added after the first schema version.
var applicationMetadataColumns = []string{"client_uri", "logo_uri", "tos_uri", "policy_uri", "contacts"}

func (s *Store) runMigrations(ctx context.Context) error {
	if err := s.addApplicationMetadataColumns(ctx); err != nil {
		return err
	}
	return s.relaxRefreshTokenColumn(ctx)
}

func (s *Store) addApplicationMetadataColumns(ctx context.Context) error {
	for _, col := range applicationMetadataColumns {
		if s.driver == DriverPostgres {
			stmt := fmt.Sprintf("ALTER TABLE oauth_applications ADD COLUMN IF NOT EXISTS %s TEXT NOT NULL DEFAULT ''", col)
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("adding %s column: %w", col, err)
			}
			continue
		}

		var count int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM pragma_table_info('oauth_applications') WHERE name = ?", col,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking for %s column: %w", col, err)
		}
		if count > 0 {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE oauth_applications ADD COLUMN %s TEXT NOT NULL DEFAULT ''", col)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("adding %s column: %w", col, err)
		}
		log.Info().Str("column", col).Msg("migration: added column to oauth_applications")
	}
	return nil
}

// relaxRefreshTokenColumn drops NOT NULL from oauth_access_tokens.refresh_token on databases
// created before refresh tokens became optional. SQLite cannot alter a column constraint, so
// the table is rebuilt in a transaction.
func (s *Store) relaxRefreshTokenColumn(ctx context.Context) error {
	if s.driver == DriverPostgres {
		_, err := s.db.ExecContext(ctx, "ALTER TABLE oauth_access_tokens ALTER COLUMN refresh_token DROP NOT NULL")
		if err != nil {
			return fmt.Errorf("relaxing refresh_token column: %w", err)
		}
		return nil
	}

	var notNull int
	err := s.db.QueryRowContext(ctx,
		"SELECT \"notnull\" FROM pragma_table_info('oauth_access_tokens') WHERE name = 'refresh_token'",
	).Scan(&notNull)
	if err != nil {
		return fmt.Errorf("checking refresh_token column: %w", err)
	}
	if notNull == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("relaxing refresh_token column: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		"ALTER TABLE oauth_access_tokens RENAME TO oauth_access_tokens_old",
		"DROP INDEX IF EXISTS idx_oauth_access_tokens_token",
		"DROP INDEX IF EXISTS idx_oauth_access_tokens_refresh",
		tokensTable,
		"INSERT INTO oauth_access_tokens SELECT * FROM oauth_access_tokens_old",
		"DROP TABLE oauth_access_tokens_old",
		tokensIndexes,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("relaxing refresh_token column: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("relaxing refresh_token column: %w", err)
	}
	log.Info().Msg("migration: oauth_access_tokens.refresh_token is now nullable")
	return nil
}

// rebind rewrites ? placeholders as $1..$n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	return Rebind(query)
}

func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

// updated reports whether a conditional update touched a row.
func updated(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// isConstraintViolation checks for unique constraint failures from either driver.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.ErrNotFound
	}
	return fmt.Errorf("getting %s: %w", what, err)
}
