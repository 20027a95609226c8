package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/maxstewm/asian-guide-web/internal/domain"
)

type CountryStore struct {
	db *sqlx.DB
}

func NewCountryStore(db *sqlx.DB) *CountryStore {
	return &CountryStore{db: db}
}

func (s *CountryStore) List(ctx context.Context) ([]domain.Country, error) {
	var countries []domain.Country
	if err := s.db.SelectContext(ctx, &countries, "SELECT id, name, slug FROM countries ORDER BY name, id"); err != nil {
		return nil, translate(err)
	}
	return countries, nil
}

type AuthorStore struct {
	db *sqlx.DB
}

func NewAuthorStore(db *sqlx.DB) *AuthorStore {
	return &AuthorStore{db: db}
}

// ExistingIDs returns the subset of ids that belong to user accounts.
func (s *AuthorStore) ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	result := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM users WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}

	return result, rows.Err()
}

type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Record(ctx context.Context, run *domain.RunSummary) error {
	query := `
		INSERT INTO pipeline_runs (kind, processed, succeeded, skipped, errors, started_at, finished_at)
		VALUES (:kind, :processed, :succeeded, :skipped, :errors, :started_at, :finished_at)
		RETURNING id`

	rows, err := s.db.NamedQueryContext(ctx, query, run)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&run.ID); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *RunStore) Latest(ctx context.Context, kind domain.RunKind) (*domain.RunSummary, error) {
	var run domain.RunSummary
	query := `
		SELECT id, kind, processed, succeeded, skipped, errors, started_at, finished_at
		FROM pipeline_runs
		WHERE kind = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1`
	if err := s.db.GetContext(ctx, &run, query, kind); err != nil {
		return nil, translate(err)
	}
	return &run, nil
}
