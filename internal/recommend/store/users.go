package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/models"
)

// GetPreferences returns USER_NOT_FOUND for unknown users.
func (p *Postgres) GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error) {
	var prefs models.UserPreferences
	err := p.db.QueryRowContext(ctx,
		`SELECT pref_genres, pref_art_styles, pref_tags, pref_excluded_tags FROM users WHERE id = $1`, userID).
		Scan(pq.Array(&prefs.Genres), pq.Array(&prefs.ArtStyles), pq.Array(&prefs.Tags), pq.Array(&prefs.ExcludedTags))
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.UserPreferences{}, errors.NewUserNotFoundError(userID)
	}
	if err != nil {
		return models.UserPreferences{}, classify(ctx, "user preferences", err, errors.NewHistoryQueryFailedError)
	}
	return prefs, nil
}

// UpdatePreferences replaces all preference lists of the user.
func (p *Postgres) UpdatePreferences(ctx context.Context, userID string, prefs models.UserPreferences) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET pref_genres = $2, pref_art_styles = $3, pref_tags = $4, pref_excluded_tags = $5,
		 updated_at = NOW() WHERE id = $1`,
		userID, pq.Array(nonNil(prefs.Genres)), pq.Array(nonNil(prefs.ArtStyles)),
		pq.Array(nonNil(prefs.Tags)), pq.Array(nonNil(prefs.ExcludedTags)))
	if err != nil {
		return classify(ctx, "update preferences", err, func(_ string, err error) *errors.StandardError {
			return errors.NewDatabaseInsertFailedError(err)
		})
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	if n == 0 {
		return errors.NewUserNotFoundError(userID)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
