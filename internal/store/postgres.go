// store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // also registers the postgres driver
	"go.uber.org/zap"

	"github.com/sentrylabs/facewatch/internal/config"
	"github.com/sentrylabs/facewatch/internal/event"
)

// PostgresStore implements EventStore using PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
	config config.PostgresConfig
}

// NewPostgresStore connects, verifies the connection and initializes
// the schema.
func NewPostgresStore(cfg config.PostgresConfig) (*PostgresStore, error) {
	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:     db,
		logger: zap.L().Named("postgres-store"),
		config: cfg,
	}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema if it doesn't exist
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	-- Enable UUID extension
	CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

	-- Detection events table
	CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		kind VARCHAR(20) NOT NULL CHECK (kind IN ('motion', 'face')),

		-- Detector output as JSONB
		data JSONB NOT NULL DEFAULT '{}',
		confidence FLOAT NOT NULL DEFAULT 0,

		-- Captured photo; photo_kind tags the representation so
		-- readers never have to guess from the column contents
		photo_kind VARCHAR(20) NOT NULL DEFAULT '' CHECK (photo_kind IN ('', 'embedded', 'remote')),
		photo TEXT,

		-- Device identity
		device_serial VARCHAR(64) NOT NULL,
		device_model VARCHAR(64) NOT NULL,

		-- Audit fields
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Gallery users table
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		last_name VARCHAR(255) NOT NULL DEFAULT '',
		email VARCHAR(255) UNIQUE NOT NULL,
		photo_urls TEXT[] DEFAULT '{}',

		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_events_data ON events USING GIN(data);

	-- Trigger for updated_at
	CREATE OR REPLACE FUNCTION update_updated_at_column()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ language 'plpgsql';

	DROP TRIGGER IF EXISTS update_events_updated_at ON events;
	CREATE TRIGGER update_events_updated_at BEFORE UPDATE ON events
		FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();

	DROP TRIGGER IF EXISTS update_users_updated_at ON users;
	CREATE TRIGGER update_users_updated_at BEFORE UPDATE ON users
		FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// eventRow mirrors the events table for sqlx scanning.
type eventRow struct {
	ID           string         `db:"id"`
	Kind         string         `db:"kind"`
	Data         []byte         `db:"data"`
	Confidence   float64        `db:"confidence"`
	PhotoKind    string         `db:"photo_kind"`
	Photo        sql.NullString `db:"photo"`
	DeviceSerial string         `db:"device_serial"`
	DeviceModel  string         `db:"device_model"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *eventRow) toRecord() (*event.Record, error) {
	rec := &event.Record{
		ID:         r.ID,
		Kind:       event.Kind(r.Kind),
		Confidence: r.Confidence,
		Device: event.DeviceIdentity{
			Serial: r.DeviceSerial,
			Model:  r.DeviceModel,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
	}

	switch event.PayloadKind(r.PhotoKind) {
	case event.PayloadEmbedded:
		raw, err := base64.StdEncoding.DecodeString(r.Photo.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedded photo: %w", err)
		}
		rec.Photo = event.Embedded(raw)
	case event.PayloadRemote:
		rec.Photo = event.Remote(r.Photo.String)
	}

	return rec, nil
}

// photoColumn maps a payload onto the photo column: embedded bytes are
// base64-encoded, remote payloads store the URL, absent ones NULL.
func photoColumn(p event.ImagePayload) sql.NullString {
	switch p.Kind {
	case event.PayloadEmbedded:
		return sql.NullString{String: base64.StdEncoding.EncodeToString(p.Data), Valid: true}
	case event.PayloadRemote:
		return sql.NullString{String: p.URL, Valid: true}
	default:
		return sql.NullString{}
	}
}

// SaveEvent writes a detection record. Saving the same ID twice
// refreshes the mutable columns instead of failing.
func (s *PostgresStore) SaveEvent(ctx context.Context, rec *event.Record) error {
	query := `
		INSERT INTO events (
			id, kind, data, confidence,
			photo_kind, photo,
			device_serial, device_model, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			confidence = EXCLUDED.confidence,
			photo_kind = EXCLUDED.photo_kind,
			photo = EXCLUDED.photo,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err = s.db.QueryRowContext(
		ctx, query,
		rec.ID, string(rec.Kind), dataJSON, rec.Confidence,
		string(rec.Photo.Kind), photoColumn(rec.Photo),
		rec.Device.Serial, rec.Device.Model, createdAt,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	s.logger.Info("Event saved",
		zap.String("id", rec.ID),
		zap.String("kind", string(rec.Kind)))

	return nil
}

// GetEvent returns the record with the given ID, or ErrNotFound.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*event.Record, error) {
	query := `
		SELECT id, kind, data, confidence, photo_kind, photo,
			device_serial, device_model, created_at, updated_at
		FROM events WHERE id = $1
	`

	var row eventRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return row.toRecord()
}

// QueryEvents returns records matching the query, newest first.
func (s *PostgresStore) QueryEvents(ctx context.Context, q EventQuery) ([]*event.Record, error) {
	query := `
		SELECT id, kind, data, confidence, photo_kind, photo,
			device_serial, device_model, created_at, updated_at
		FROM events
	`

	var conditions []string
	var args []interface{}
	argIdx := 1

	if q.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, string(q.Kind))
		argIdx++
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, q.Since)
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, q.Limit)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	records := make([]*event.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// userRow mirrors the users table for sqlx scanning.
type userRow struct {
	ID        string         `db:"id"`
	FirstName string         `db:"first_name"`
	LastName  string         `db:"last_name"`
	Email     string         `db:"email"`
	PhotoURLs pq.StringArray `db:"photo_urls"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r *userRow) toUser() *User {
	return &User{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		PhotoURLs: []string(r.PhotoURLs),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// SaveUser inserts or refreshes a gallery user keyed by email.
func (s *PostgresStore) SaveUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := `
		INSERT INTO users (id, first_name, last_name, email, photo_urls)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			photo_urls = EXCLUDED.photo_urls,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(
		ctx, query,
		user.ID, user.FirstName, user.LastName, user.Email, pq.Array(user.PhotoURLs),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	s.logger.Info("User saved",
		zap.String("id", user.ID),
		zap.String("name", user.DisplayName()),
		zap.Int("photos", len(user.PhotoURLs)))

	return nil
}

// ListUsers returns all gallery users, oldest first.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	query := `
		SELECT id, first_name, last_name, email, photo_urls, created_at, updated_at
		FROM users ORDER BY created_at
	`

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toUser())
	}

	return users, nil
}

// HealthCheck verifies the database is reachable.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
