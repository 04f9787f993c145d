package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"tagindex/internal/domain"
)

const (
	DefaultMembershipTable = "tag_memberships"
	DefaultKnownTagsTable  = "known_tags"
)

// Config holds the settings of the Postgres relation store.
type Config struct {
	DSN             string
	MembershipTable string
	KnownTagsTable  string
	// Retention defaults to DeleteOnEmpty: a tag exists while it has membership rows.
	Retention domain.RetentionPolicy
	// AutoMigrate creates the tables during Start.
	AutoMigrate bool
}

type queries struct {
	createMemberships string
	createKnownTags   string
	insertMembership  string
	insertKnownTag    string
	deleteMembership  string
	selectTags        string
	selectItems       string
	tagExists         string
}

func buildQueries(membership, known string) queries {
	m, k := pq.QuoteIdentifier(membership), pq.QuoteIdentifier(known)
	return queries{
		createMemberships: `CREATE TABLE IF NOT EXISTS ` + m + ` (item TEXT NOT NULL, tag TEXT NOT NULL, PRIMARY KEY (item, tag))`,
		createKnownTags:   `CREATE TABLE IF NOT EXISTS ` + k + ` (tag TEXT PRIMARY KEY)`,
		insertMembership:  `INSERT INTO ` + m + ` (item, tag) VALUES ($1, $2) ON CONFLICT (item, tag) DO NOTHING`,
		insertKnownTag:    `INSERT INTO ` + k + ` (tag) VALUES ($1) ON CONFLICT (tag) DO NOTHING`,
		deleteMembership:  `DELETE FROM ` + m + ` WHERE item = $1 AND tag = $2`,
		selectTags:        `SELECT tag FROM ` + m + ` WHERE item = $1`,
		selectItems:       `SELECT item FROM ` + m + ` WHERE tag = $1`,
		tagExists:         `SELECT EXISTS (SELECT 1 FROM ` + m + ` WHERE tag = $1)`,
	}
}

// RelationStore keeps one row per membership, so both views are read from the
// same row and cannot drift apart.
type RelationStore struct {
	cfg Config
	q   queries
	// driver is the database/sql driver used when the store opens its own pool.
	driver string

	mu      sync.RWMutex
	db      *sql.DB
	ownsDB  bool
	started bool
}

// NewRelationStore returns a store that opens its own connection pool from cfg.DSN at Start.
func NewRelationStore(cfg Config) *RelationStore {
	if cfg.MembershipTable == "" {
		cfg.MembershipTable = DefaultMembershipTable
	}
	if cfg.KnownTagsTable == "" {
		cfg.KnownTagsTable = DefaultKnownTagsTable
	}
	if cfg.Retention == 0 {
		cfg.Retention = domain.DeleteOnEmpty
	}
	s := &RelationStore{cfg: cfg, q: buildQueries(cfg.MembershipTable, cfg.KnownTagsTable), driver: "postgres"}
	if cfg.Retention == domain.RetainEmpty {
		s.q.tagExists = `SELECT EXISTS (SELECT 1 FROM ` + pq.QuoteIdentifier(cfg.KnownTagsTable) + ` WHERE tag = $1)`
	}
	return s
}

// NewRelationStoreWithDB returns a store using db. The caller keeps ownership
// of db; Shutdown does not close it.
func NewRelationStoreWithDB(db *sql.DB, cfg Config) *RelationStore {
	s := NewRelationStore(cfg)
	s.db = db
	return s
}

func (s *RelationStore) Retention() domain.RetentionPolicy { return s.cfg.Retention }

func (s *RelationStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	db := s.db
	if db == nil {
		if s.cfg.DSN == "" {
			return fmt.Errorf("%w: empty postgres data source name", domain.ErrInvalidConfig)
		}
		var err error
		db, err = sql.Open(s.driver, s.cfg.DSN)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		s.ownsDB = true
	}
	if err := db.PingContext(ctx); err != nil {
		s.release(db)
		return wrap("ping", err)
	}
	if s.cfg.AutoMigrate {
		if err := s.migrate(ctx, db); err != nil {
			s.release(db)
			return err
		}
	}
	s.db = db
	s.started = true
	return nil
}

// release closes db after a failed Start if the store opened it.
func (s *RelationStore) release(db *sql.DB) {
	if s.ownsDB {
		_ = db.Close()
		s.db, s.ownsDB = nil, false
	}
}

// Migrate creates the membership and known-tag tables if they are missing.
func (s *RelationStore) Migrate(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return s.migrate(ctx, db)
}

func (s *RelationStore) migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, s.q.createMemberships); err != nil {
		return wrap("create memberships table", err)
	}
	if _, err := db.ExecContext(ctx, s.q.createKnownTags); err != nil {
		return wrap("create known tags table", err)
	}
	return nil
}

func (s *RelationStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	if s.ownsDB {
		db := s.db
		s.db, s.ownsDB = nil, false
		if err := db.Close(); err != nil {
			return wrap("close", err)
		}
	}
	return nil
}

func (s *RelationStore) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, domain.ErrNotStarted
	}
	return s.db, nil
}

func (s *RelationStore) TagItem(ctx context.Context, item, tag string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if s.cfg.Retention != domain.RetainEmpty {
		if _, err := db.ExecContext(ctx, s.q.insertMembership, item, tag); err != nil {
			return wrap("insert membership", err)
		}
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	if _, err := tx.ExecContext(ctx, s.q.insertMembership, item, tag); err != nil {
		_ = tx.Rollback()
		return wrap("insert membership", err)
	}
	if _, err := tx.ExecContext(ctx, s.q.insertKnownTag, tag); err != nil {
		_ = tx.Rollback()
		return wrap("insert known tag", err)
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit", err)
	}
	return nil
}

func (s *RelationStore) UntagItem(ctx context.Context, item, tag string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, s.q.deleteMembership, item, tag); err != nil {
		return wrap("delete membership", err)
	}
	return nil
}

func (s *RelationStore) column(ctx context.Context, query, arg string) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, wrap("query", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, wrap("scan", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("rows", err)
	}
	return out, nil
}

func (s *RelationStore) RetrieveTagsForItem(ctx context.Context, item string) ([]string, error) {
	return s.column(ctx, s.q.selectTags, item)
}

func (s *RelationStore) RetrieveItemsWithTag(ctx context.Context, tag string) ([]string, error) {
	return s.column(ctx, s.q.selectItems, tag)
}

func (s *RelationStore) TagExists(ctx context.Context, tag string) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := db.QueryRowContext(ctx, s.q.tagExists, tag).Scan(&exists); err != nil {
		return false, wrap("tag exists", err)
	}
	return exists, nil
}

// wrap marks err as a backend failure, keeping the SQLSTATE when the driver reports one.
func wrap(op string, err error) error {
	var perr *pq.Error
	if errors.As(err, &perr) {
		return fmt.Errorf("%w: %s: %s (%s): %w", domain.ErrBackend, op, perr.Message, perr.Code, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrBackend, op, err)
}
