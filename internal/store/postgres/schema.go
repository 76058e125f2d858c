package postgres

import (
	"context"

	"github.com/likaia/nginxpulse-exporter/internal/errors"
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS exporter;

CREATE TABLE IF NOT EXISTS exporter.export_job (
	id               text PRIMARY KEY,
	website_id       text NOT NULL,
	params           jsonb NOT NULL DEFAULT '{}'::jsonb,
	format           text NOT NULL DEFAULT 'csv',
	file_name        text NOT NULL DEFAULT '',
	status           text NOT NULL DEFAULT 'queued',
	processed        bigint NOT NULL DEFAULT 0,
	total            bigint NOT NULL DEFAULT 0,
	artifact_ref     text NOT NULL DEFAULT '',
	error            text NOT NULL DEFAULT '',
	retry_of         text NOT NULL DEFAULT '',
	cancel_requested boolean NOT NULL DEFAULT false,
	created_at       timestamptz NOT NULL DEFAULT now(),
	updated_at       timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS export_job_website_created_idx
	ON exporter.export_job (website_id, created_at DESC);

CREATE INDEX IF NOT EXISTS export_job_status_idx
	ON exporter.export_job (status);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	db, err := s.Database()
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return errors.Internal(err.Error(),
			errors.WithID("store.postgres.schema.bootstrap.error"), errors.WithCause(err))
	}
	return nil
}
