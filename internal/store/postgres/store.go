package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	conf "github.com/likaia/nginxpulse-exporter/config"
	"github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/internal/store"
)

// Store is the struct implementing the Store interface.
type Store struct {
	jobStore store.JobStore
	config   *conf.DatabaseConfig
	conn     *pgxpool.Pool
}

// New creates a new Store instance.
func New(config *conf.DatabaseConfig) *Store {
	return &Store{config: config}
}

func (s *Store) Job() store.JobStore {
	if s.jobStore == nil {
		js, err := NewJobStore(s)
		if err != nil {
			return nil
		}
		s.jobStore = js
	}
	return s.jobStore
}

// Database returns the database connection or a custom error if it is not opened.
func (s *Store) Database() (*pgxpool.Pool, error) {
	if s.conn == nil {
		return nil, errors.Internal("database connection is not opened",
			errors.WithID("store.postgres.database.not_opened"))
	}
	return s.conn, nil
}

// Open establishes a connection to the database and bootstraps the schema.
func (s *Store) Open() error {
	config, err := pgxpool.ParseConfig(s.config.Url)
	if err != nil {
		return errors.Internal(err.Error(),
			errors.WithID("store.postgres.open.parse_config.error"), errors.WithCause(err))
	}

	conn, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return errors.Internal(err.Error(),
			errors.WithID("store.postgres.open.connect.error"), errors.WithCause(err))
	}
	s.conn = conn

	if err := s.ensureSchema(context.Background()); err != nil {
		return err
	}
	slog.Debug("exporter.store.connection_opened", slog.String("message", "postgres: connection opened"))
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		s.conn.Close()
		slog.Debug("exporter.store.connection_closed", slog.String("message", "postgres: connection closed"))
		s.conn = nil
	}
	return nil
}
