package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
)

const manhwaColumns = "id, title, description, cover_image, author, artist, status, release_year, " +
	"genres, tags, art_styles, view_count, favorite_count, rating, rating_count, is_active, created_at, updated_at"

// Find returns the catalog page selected by q.
func (p *Postgres) Find(ctx context.Context, q query.Catalog) ([]models.Manhwa, error) {
	stmt, args, err := compileFind(q)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}

	rows, err := p.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify(ctx, "catalog find", err, errors.NewCatalogQueryFailedError)
	}
	defer rows.Close()

	items := make([]models.Manhwa, 0)
	for rows.Next() {
		m, err := scanManhwa(rows)
		if err != nil {
			return nil, errors.NewCatalogQueryFailedError("catalog scan", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, "catalog find", err, errors.NewCatalogQueryFailedError)
	}
	return items, nil
}

// Count returns how many items match q, ignoring paging.
func (p *Postgres) Count(ctx context.Context, q query.Catalog) (int64, error) {
	stmt, args, err := compileCount(q)
	if err != nil {
		return 0, errors.NewInvalidRequestError(err.Error())
	}

	var n int64
	if err := p.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, classify(ctx, "catalog count", err, errors.NewCatalogQueryFailedError)
	}
	return n, nil
}

// TrendingQuery orders active items by view count, newest update first on
// ties.
func TrendingQuery(offset, limit int) query.Catalog {
	q := query.Catalog{}
	q.Where(query.Active()).
		OrderBy(query.FieldViewCount, true).
		OrderBy(query.FieldUpdatedAt, true).
		Page(offset, limit)
	return q
}

// EachActive walks every active item in id order, batchSize at a time.
func (p *Postgres) EachActive(ctx context.Context, batchSize int, fn func([]models.Manhwa) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	for offset := 0; ; offset += batchSize {
		q := query.Catalog{}
		q.Where(query.Active()).OrderBy(query.FieldID, false).Page(offset, batchSize)

		batch, err := p.Find(ctx, q)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanManhwa(row rowScanner) (models.Manhwa, error) {
	var (
		m      models.Manhwa
		status string
	)
	err := row.Scan(
		&m.ID, &m.Title, &m.Description, &m.CoverImage, &m.Author, &m.Artist, &status, &m.ReleaseYear,
		pq.Array(&m.Genres), pq.Array(&m.Tags), pq.Array(&m.ArtStyle),
		&m.Popularity.ViewCount, &m.Popularity.FavoriteCount, &m.Popularity.Rating, &m.Popularity.RatingCount,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return models.Manhwa{}, err
	}
	m.Status = models.ManhwaStatus(status)
	if m.Genres == nil {
		m.Genres = []string{}
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.ArtStyle == nil {
		m.ArtStyle = []string{}
	}
	return m, nil
}

// classify turns deadline errors into QUERY_TIMEOUT and wraps the rest with
// the caller's constructor.
func classify(ctx context.Context, op string, err error, wrap func(string, error) *errors.StandardError) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewQueryTimeoutError(op)
	}
	if stderrors.Is(err, sql.ErrConnDone) {
		return errors.NewDatabaseConnectionFailedError(err)
	}
	return wrap(op, fmt.Errorf("%s: %w", op, err))
}
