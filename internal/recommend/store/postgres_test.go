package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
)

// ==========================
// Test helpers
// ==========================

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db, logger.NewTestLogger(t)), mock
}

var manhwaRowColumns = []string{
	"id", "title", "description", "cover_image", "author", "artist", "status", "release_year",
	"genres", "tags", "art_styles", "view_count", "favorite_count", "rating", "rating_count",
	"is_active", "created_at", "updated_at",
}

var ts = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func manhwaRow(rows *sqlmock.Rows, id string, views int64, genres string) *sqlmock.Rows {
	return rows.AddRow(id, "Title "+id, "", "", "Author", "Artist", "Ongoing", 2020,
		genres, "{Isekai}", "{Webtoon}", views, 10, 4.5, 100, true, ts, ts)
}

// ==========================
// Catalog
// ==========================

func TestPostgres_Find(t *testing.T) {
	store, mock := newMockStore(t)

	q := query.Catalog{}
	q.Where(query.Active()).Where(query.In(query.FieldGenres, "Action")).OrderBy(query.FieldViewCount, true).Page(0, 2)

	rows := sqlmock.NewRows(manhwaRowColumns)
	manhwaRow(rows, "m1", 9000, "{Action,Drama}")
	manhwaRow(rows, "m2", 5000, "{Action}")

	mock.ExpectQuery(regexp.QuoteMeta("FROM manhwas WHERE is_active = $1 AND genres && $2 ORDER BY view_count DESC LIMIT $3")).
		WithArgs(true, pq.Array([]string{"Action"}), 2).
		WillReturnRows(rows)

	items, err := store.Find(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "m1", items[0].ID)
	assert.Equal(t, []string{"Action", "Drama"}, items[0].Genres)
	assert.Equal(t, []string{"Webtoon"}, items[0].ArtStyle)
	assert.Equal(t, int64(9000), items[0].Popularity.ViewCount)
	assert.Equal(t, models.StatusOngoing, items[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Find_QueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM manhwas").WillReturnError(sql.ErrConnDone)

	q := query.Catalog{}
	q.Where(query.Active())
	_, err := store.Find(context.Background(), q)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabaseConnectionFailed))
}

func TestPostgres_Find_InvalidQuery(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.Find(context.Background(), query.Catalog{Offset: -1})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
}

func TestPostgres_Count(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM manhwas WHERE is_active = $1")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := store.Count(context.Background(), TrendingQuery(0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestPostgres_EachActive(t *testing.T) {
	store, mock := newMockStore(t)

	first := sqlmock.NewRows(manhwaRowColumns)
	manhwaRow(first, "a", 1, "{}")
	manhwaRow(first, "b", 1, "{}")
	second := sqlmock.NewRows(manhwaRowColumns)
	manhwaRow(second, "c", 1, "{}")

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id ASC LIMIT $2")).WithArgs(true, 2).WillReturnRows(first)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id ASC OFFSET $2 LIMIT $3")).WithArgs(true, 2, 2).WillReturnRows(second)

	var seen []string
	err := store.EachActive(context.Background(), 2, func(batch []models.Manhwa) error {
		for _, m := range batch {
			seen = append(seen, m.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Reading history
// ==========================

func TestPostgres_History(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT manhwa_id FROM reading_history WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"manhwa_id"}).AddRow("m1").AddRow("m2"))

	ids, err := store.ReadItemIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reading_history WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.CountHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	mock.ExpectQuery("GROUP BY user_id HAVING COUNT").
		WithArgs(pq.Array([]string{"m1", "m2"}), "u1", 3, 20).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "shared"}).AddRow("u2", 5).AddRow("u3", 3))

	similar, err := store.SimilarUsers(ctx, "u1", []string{"m1", "m2"}, 3, 20)
	require.NoError(t, err)
	assert.Equal(t, []models.SimilarUser{{UserID: "u2", SharedCount: 5}, {UserID: "u3", SharedCount: 3}}, similar)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT manhwa_id FROM reading_history WHERE user_id = ANY($1)")).
		WithArgs(pq.Array([]string{"u2", "u3"})).
		WillReturnRows(sqlmock.NewRows([]string{"manhwa_id"}).AddRow("m1").AddRow("m9"))

	cohortItems, err := store.ItemsReadBy(ctx, []string{"u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m9"}, cohortItems)

	mock.ExpectQuery("GROUP BY manhwa_id").
		WithArgs(pq.Array([]string{"u2", "u3"}), pq.Array([]string{"m9", "m10"})).
		WillReturnRows(sqlmock.NewRows([]string{"manhwa_id", "avg", "count"}).
			AddRow("m9", 4.5, 2).
			AddRow("m10", nil, 1))

	stats, err := store.CohortStats(ctx, []string{"u2", "u3"}, []string{"m9", "m10"})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.NotNil(t, stats[0].AvgRating)
	assert.InDelta(t, 4.5, *stats[0].AvgRating, 1e-9)
	assert.Nil(t, stats[1].AvgRating)
	assert.Equal(t, 1, stats[1].ReadCount)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND rating >= $2")).
		WithArgs("u1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"manhwa_id"}).AddRow("m2"))

	favs, err := store.Favorites(ctx, "u1", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, favs)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_History_EmptyInputsSkipQueries(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	similar, err := store.SimilarUsers(ctx, "u1", nil, 3, 20)
	require.NoError(t, err)
	assert.Empty(t, similar)

	items, err := store.ItemsReadBy(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	stats, err := store.CohortStats(ctx, []string{"u2"}, nil)
	require.NoError(t, err)
	assert.Empty(t, stats)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_History_Timeout(t *testing.T) {
	store, mock := newMockStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(context.DeadlineExceeded)

	_, err := store.CountHistory(ctx, "u1")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeQueryTimeout))
}

// ==========================
// Users
// ==========================

func TestPostgres_GetPreferences(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"pref_genres", "pref_art_styles", "pref_tags", "pref_excluded_tags"}).
			AddRow("{Action,Fantasy}", "{}", "{Isekai}", "{}"))

	prefs, err := store.GetPreferences(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Action", "Fantasy"}, prefs.Genres)
	assert.Equal(t, []string{"Isekai"}, prefs.Tags)
	assert.Empty(t, prefs.ArtStyles)
}

func TestPostgres_GetPreferences_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM users").WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := store.GetPreferences(context.Background(), "ghost")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUserNotFound))
}

func TestPostgres_UpdatePreferences(t *testing.T) {
	store, mock := newMockStore(t)
	prefs := models.UserPreferences{Genres: []string{"Romance"}}

	mock.ExpectExec("UPDATE users SET").
		WithArgs("u1", pq.Array([]string{"Romance"}), pq.Array([]string{}), pq.Array([]string{}), pq.Array([]string{})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpdatePreferences(context.Background(), "u1", prefs))

	mock.ExpectExec("UPDATE users SET").WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.UpdatePreferences(context.Background(), "ghost", prefs)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUserNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Records
// ==========================

func TestPostgres_SaveRecord(t *testing.T) {
	store, mock := newMockStore(t)

	rec := models.RecommendationRecord{
		ID:     "4b0e1a4e-1111-4a4a-9a9a-000000000001",
		UserID: "u1",
		Recommendations: []models.RecordItem{
			{ManhwaID: "m1", Score: 0.8, Reason: models.ReasonGenreMatch, Weight: 1},
		},
		GeneratedBy:    models.TierStandard,
		IsPersonalized: true,
		Filters:        models.RecommendationFilters{Genres: []string{"Action"}},
		Metadata: models.RecordMetadata{
			ProcessingTime:   12,
			AlgorithmVersion: "1.0.0",
			ItemsConsidered:  120,
			ConfidenceScore:  0.85,
		},
		ExpiresAt: ts.Add(24 * time.Hour),
		CreatedAt: ts,
	}
	items, _ := json.Marshal(rec.Recommendations)
	filters, _ := json.Marshal(rec.Filters)

	mock.ExpectExec("INSERT INTO recommendations").
		WithArgs(rec.ID, "u1", items, "standard", true, filters, int64(12), "1.0.0", int64(120), 0.85, rec.ExpiresAt, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PurgeExpired(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recommendations WHERE expires_at < $1")).
		WithArgs(ts).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.PurgeExpired(context.Background(), ts)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPostgres_Migrate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS manhwas").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
