package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"labelsync/internal/model"
	"labelsync/internal/repository"
)

type PostgresRunRepository struct {
	db *sql.DB
}

func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

func (r *PostgresRunRepository) Create(ctx context.Context, run *model.Run) error {
	query := `
		INSERT INTO ingest_runs (id, label, started_at, finished_at, threads_seen, messages_seen, rows_added, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Label, run.StartedAt.UTC(), nullTime(run.FinishedAt),
		run.ThreadsSeen, run.MessagesSeen, run.RowsAdded, run.Error)
	return err
}

func (r *PostgresRunRepository) Update(ctx context.Context, run *model.Run) error {
	query := `
		UPDATE ingest_runs SET finished_at=$1, threads_seen=$2, messages_seen=$3,
		rows_added=$4, error=$5 WHERE id=$6`
	result, err := r.db.ExecContext(ctx, query,
		nullTime(run.FinishedAt), run.ThreadsSeen, run.MessagesSeen,
		run.RowsAdded, run.Error, run.ID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return repository.ErrRunNotFound
	}
	return nil
}

func (r *PostgresRunRepository) FindByID(ctx context.Context, id string) (*model.Run, error) {
	query := `SELECT id, label, started_at, finished_at, threads_seen, messages_seen, rows_added, error FROM ingest_runs WHERE id = $1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *PostgresRunRepository) FindRecent(ctx context.Context, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, label, started_at, finished_at, threads_seen, messages_seen, rows_added, error
		FROM ingest_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*model.Run, error) {
	run := &model.Run{}
	var finished sql.NullTime
	err := row.Scan(
		&run.ID, &run.Label, &run.StartedAt, &finished,
		&run.ThreadsSeen, &run.MessagesSeen, &run.RowsAdded, &run.Error)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}

// Columns are TIMESTAMP without zone and always hold UTC.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
