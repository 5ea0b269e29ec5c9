package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/models"
)

// ReadItemIDs returns every item the user has a history entry for.
func (p *Postgres) ReadItemIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT manhwa_id FROM reading_history WHERE user_id = $1`, userID)
	if err != nil {
		return nil, classify(ctx, "read items", err, errors.NewHistoryQueryFailedError)
	}
	return collectIDs(ctx, rows, "read items")
}

func (p *Postgres) CountHistory(ctx context.Context, userID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reading_history WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, classify(ctx, "count history", err, errors.NewHistoryQueryFailedError)
	}
	return n, nil
}

// SimilarUsers finds other readers sharing at least minShared of itemIDs,
// most overlap first.
func (p *Postgres) SimilarUsers(ctx context.Context, userID string, itemIDs []string, minShared, limit int) ([]models.SimilarUser, error) {
	if len(itemIDs) == 0 {
		return []models.SimilarUser{}, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT user_id, COUNT(*) AS shared FROM reading_history
		 WHERE manhwa_id = ANY($1) AND user_id <> $2
		 GROUP BY user_id HAVING COUNT(*) >= $3
		 ORDER BY shared DESC, user_id LIMIT $4`,
		pq.Array(itemIDs), userID, minShared, limit)
	if err != nil {
		return nil, classify(ctx, "similar users", err, errors.NewHistoryQueryFailedError)
	}
	defer rows.Close()

	users := make([]models.SimilarUser, 0)
	for rows.Next() {
		var u models.SimilarUser
		if err := rows.Scan(&u.UserID, &u.SharedCount); err != nil {
			return nil, errors.NewHistoryQueryFailedError("similar users scan", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, "similar users", err, errors.NewHistoryQueryFailedError)
	}
	return users, nil
}

// ItemsReadBy returns the distinct items any of userIDs has read.
func (p *Postgres) ItemsReadBy(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT manhwa_id FROM reading_history WHERE user_id = ANY($1)`, pq.Array(userIDs))
	if err != nil {
		return nil, classify(ctx, "cohort items", err, errors.NewHistoryQueryFailedError)
	}
	return collectIDs(ctx, rows, "cohort items")
}

// CohortStats aggregates ratings and read counts of itemIDs within the
// cohort. Items nobody in the cohort read are absent.
func (p *Postgres) CohortStats(ctx context.Context, userIDs, itemIDs []string) ([]models.CohortStat, error) {
	if len(userIDs) == 0 || len(itemIDs) == 0 {
		return []models.CohortStat{}, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT manhwa_id, AVG(rating)::float8, COUNT(*) FROM reading_history
		 WHERE user_id = ANY($1) AND manhwa_id = ANY($2)
		 GROUP BY manhwa_id`,
		pq.Array(userIDs), pq.Array(itemIDs))
	if err != nil {
		return nil, classify(ctx, "cohort stats", err, errors.NewHistoryQueryFailedError)
	}
	defer rows.Close()

	stats := make([]models.CohortStat, 0)
	for rows.Next() {
		var (
			s   models.CohortStat
			avg sql.NullFloat64
		)
		if err := rows.Scan(&s.ManhwaID, &avg, &s.ReadCount); err != nil {
			return nil, errors.NewHistoryQueryFailedError("cohort stats scan", err)
		}
		if avg.Valid {
			v := avg.Float64
			s.AvgRating = &v
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, "cohort stats", err, errors.NewHistoryQueryFailedError)
	}
	return stats, nil
}

// Favorites returns items the user rated at least minRating.
func (p *Postgres) Favorites(ctx context.Context, userID string, minRating int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT manhwa_id FROM reading_history WHERE user_id = $1 AND rating >= $2`, userID, minRating)
	if err != nil {
		return nil, classify(ctx, "favorites", err, errors.NewHistoryQueryFailedError)
	}
	return collectIDs(ctx, rows, "favorites")
}

func collectIDs(ctx context.Context, rows *sql.Rows, op string) ([]string, error) {
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewHistoryQueryFailedError(op+" scan", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, op, err, errors.NewHistoryQueryFailedError)
	}
	return ids, nil
}
