package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"manhwa-recommender/internal/common/auth"
	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/service"
	"manhwa-recommender/internal/resources"
)

const maxBodyBytes = 64 << 10

type errorBody struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details string      `json:"details,omitempty"`
	Fields  interface{} `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps StandardError codes to statuses. Server-side failures get
// a generic message; the cause is only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr, ok := errors.As(err)
	if !ok {
		switch {
		case stderrors.Is(err, context.DeadlineExceeded):
			stdErr = errors.NewTimeoutError("request", err)
		default:
			stdErr = errors.NewInternalError(err)
		}
	}

	status := errors.HTTPStatus(stdErr.Code)
	body := errorBody{Error: stdErr.Message, Code: string(stdErr.Code)}
	if fields, ok := stdErr.Metadata["fields"]; ok {
		body.Fields = fields
	}
	if status < http.StatusInternalServerError {
		body.Details = stdErr.Details
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{
			"requestId": chimiddleware.GetReqID(r.Context()),
			"path":      r.URL.Path,
			"code":      stdErr.Code,
			"error":     err,
		})
		if stdErr.Code == errors.ErrCodeRecommendationFailed {
			body.Error = "Failed to generate recommendations"
		}
	}
	writeJSON(w, status, body)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidRequestError(name + " must be an integer")
	}
	return n, nil
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		s.writeError(w, r, errors.NewUnauthorizedError("authentication required"))
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.recommender.Recommend(r.Context(), service.Params{
		UserID:  claims.UserID(),
		Limit:   limit,
		Offset:  offset,
		Genres:  service.SplitList(r.URL.Query().Get("genres")),
		Tags:    service.SplitList(r.URL.Query().Get("tags")),
		Refresh: queryBool(r, "refresh"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) trending(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.recommender.Trending(r.Context(), service.TrendingParams{Limit: limit, Offset: offset})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) updatePreferences(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		s.writeError(w, r, errors.NewUnauthorizedError("authentication required"))
		return
	}

	var prefs models.UserPreferences
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&prefs); err != nil {
		s.writeError(w, r, errors.NewInvalidRequestError("invalid preferences body: "+err.Error()))
		return
	}

	saved, err := s.recommender.UpdatePreferences(r.Context(), claims.UserID(), prefs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"preferences": saved})
}

type resourcesBody struct {
	Snapshot         models.ResourceSnapshot `json:"snapshot"`
	IsUnderHeavyLoad bool                    `json:"isUnderHeavyLoad"`
	Estimate         models.UsageEstimate    `json:"estimate"`
}

func (s *Server) systemResources(w http.ResponseWriter, r *http.Request) {
	snap := s.resources.Sample(r.Context())
	writeJSON(w, http.StatusOK, resourcesBody{
		Snapshot:         snap,
		IsUnderHeavyLoad: s.resources.IsHeavy(snap),
		Estimate:         resources.EstimateFrom(snap),
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.opts.ServiceName,
		"version": s.opts.Version,
	})
}

// ready runs every dependency check with a short deadline.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "checks": results})
}
