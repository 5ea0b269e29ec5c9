package store

import (
	"context"
	"encoding/json"
	"time"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/models"
)

func (p *Postgres) SaveRecord(ctx context.Context, rec models.RecommendationRecord) error {
	items, err := json.Marshal(rec.Recommendations)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	filters, err := json.Marshal(rec.Filters)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO recommendations (id, user_id, items, generated_by, is_personalized, filters,
		 processing_time_ms, algorithm_version, items_considered, confidence_score, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.UserID, items, string(rec.GeneratedBy), rec.IsPersonalized, filters,
		rec.Metadata.ProcessingTime, rec.Metadata.AlgorithmVersion, rec.Metadata.ItemsConsidered,
		rec.Metadata.ConfidenceScore, rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.NewQueryTimeoutError("save record")
		}
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

// PurgeExpired deletes records whose expiry is before now.
func (p *Postgres) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM recommendations WHERE expires_at < $1`, now)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, errors.NewQueryTimeoutError("purge records")
		}
		return 0, errors.NewDatabaseInsertFailedError(err)
	}
	return res.RowsAffected()
}
