package generaterecommendations

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/service"
	"manhwa-recommender/internal/resources"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout: 5 * time.Second,
		Throttle: resources.ThrottleOptions{
			CPUThreshold:    70,
			MemoryThreshold: 80,
			RetryDelay:      time.Millisecond,
			MaxRetries:      2,
		},
	}
}

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

type fixedSampler models.ResourceSnapshot

func (s fixedSampler) Sample(context.Context) models.ResourceSnapshot {
	return models.ResourceSnapshot(s)
}

var (
	calm      = fixedSampler{CPU: 20, Memory: 30}
	saturated = fixedSampler{CPU: 95, Memory: 90}
)

type fakeRecommender struct {
	recommendErr  error
	trendingErr   error
	gotParams     service.Params
	gotTrending   service.TrendingParams
	recommendHits int
	trendingHits  int
}

func (f *fakeRecommender) Recommend(_ context.Context, p service.Params) (*models.RecommendationResponse, error) {
	f.recommendHits++
	f.gotParams = p
	if f.recommendErr != nil {
		return nil, f.recommendErr
	}
	return response(models.TierStandard, models.ReasonSimilarToRead, "m1", "m2"), nil
}

func (f *fakeRecommender) Trending(_ context.Context, p service.TrendingParams) (*models.RecommendationResponse, error) {
	f.trendingHits++
	f.gotTrending = p
	if f.trendingErr != nil {
		return nil, f.trendingErr
	}
	return response(models.TierLightweight, models.ReasonTrending, "t1"), nil
}

func response(tier models.Tier, reason models.Reason, ids ...string) *models.RecommendationResponse {
	items := make([]models.ScoredRecommendation, 0, len(ids))
	for _, id := range ids {
		items = append(items, models.ScoredRecommendation{Manhwa: models.Manhwa{ID: id}, Score: 0.5, Reason: reason})
	}
	return &models.RecommendationResponse{
		Items:    items,
		Metadata: models.ResponseMetadata{Tier: tier, Count: len(items), Total: int64(len(items))},
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	rec := &fakeRecommender{}
	h := NewHandler(createTestConfig(), rec, calm, createTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{
		UserID:  "u1",
		Limit:   5,
		Offset:  10,
		Genres:  []string{"Action"},
		Tags:    []string{"Revenge"},
		Refresh: true,
	})
	require.NoError(t, err)

	assert.False(t, out.Degraded)
	assert.Equal(t, models.TierStandard, out.Metadata.Tier)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "m1", out.Items[0].Manhwa.ID)

	assert.Equal(t, service.Params{
		UserID:  "u1",
		Limit:   5,
		Offset:  10,
		Genres:  []string{"Action"},
		Tags:    []string{"Revenge"},
		Refresh: true,
	}, rec.gotParams)
	assert.Zero(t, rec.trendingHits)
}

func TestHandler_Execute_FallsBackToTrendingUnderLoad(t *testing.T) {
	rec := &fakeRecommender{}
	h := NewHandler(createTestConfig(), rec, saturated, createTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "u1", Limit: 3, Offset: 6})
	require.NoError(t, err)

	assert.True(t, out.Degraded)
	assert.Equal(t, models.TierLightweight, out.Metadata.Tier)
	require.Len(t, out.Items, 1)
	assert.Equal(t, models.ReasonTrending, out.Items[0].Reason)

	assert.Zero(t, rec.recommendHits)
	assert.Equal(t, service.TrendingParams{Limit: 3, Offset: 6}, rec.gotTrending)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    *Input
		rec      *fakeRecommender
		sampler  resources.Sampler
		wantCode errors.ErrorCode
	}{
		{
			name:     "nil input",
			input:    nil,
			rec:      &fakeRecommender{},
			sampler:  calm,
			wantCode: errors.ErrCodeInvalidRequest,
		},
		{
			name:     "blank user id",
			input:    &Input{UserID: "  "},
			rec:      &fakeRecommender{},
			sampler:  calm,
			wantCode: errors.ErrCodeInvalidRequest,
		},
		{
			name:     "unknown user",
			input:    &Input{UserID: "ghost"},
			rec:      &fakeRecommender{recommendErr: errors.NewUserNotFoundError("ghost")},
			sampler:  calm,
			wantCode: errors.ErrCodeUserNotFound,
		},
		{
			name:     "pipeline failure",
			input:    &Input{UserID: "u1"},
			rec:      &fakeRecommender{recommendErr: errors.NewRecommendationFailedError("u1", stderrors.New("db down"))},
			sampler:  calm,
			wantCode: errors.ErrCodeRecommendationFailed,
		},
		{
			name:     "trending fallback failure",
			input:    &Input{UserID: "u1"},
			rec:      &fakeRecommender{trendingErr: errors.NewCatalogQueryFailedError("find", stderrors.New("db down"))},
			sampler:  saturated,
			wantCode: errors.ErrCodeCatalogQueryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(createTestConfig(), tt.rec, tt.sampler, createTestLogger(t))

			out, err := h.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

func TestHandler_Execute_CancelledWhileThrottled(t *testing.T) {
	cfg := createTestConfig()
	cfg.Throttle.RetryDelay = time.Hour
	h := NewHandler(cfg, &fakeRecommender{}, saturated, createTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Execute(ctx, &Input{UserID: "u1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, resources.DefaultThrottleOptions(), cfg.Throttle)
}
