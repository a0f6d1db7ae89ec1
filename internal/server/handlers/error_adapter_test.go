package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/edison/internal/errors"
	"github.com/3leaps/edison/pkg/jobs"
)

// missingJobs answers every lookup with ErrJobNotFound.
type missingJobs struct{}

func (missingJobs) StartAsyncJob(context.Context, string) (string, error) {
	return "", jobs.ErrUnknownJobType
}

func (missingJobs) FindJob(_ context.Context, id string) (*jobs.Record, error) {
	return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
}

func (missingJobs) FindJobs(context.Context, string, int) ([]*jobs.Record, error) { return nil, nil }
func (missingJobs) DeleteJobs(context.Context, string) (int, error)             { return 0, nil }
func (missingJobs) KillJob(context.Context, string) error                       { return jobs.ErrJobNotFound }
func (missingJobs) Definitions() []jobs.Definition                              { return nil }

func getJob(h *JobHandlers, id string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/internal/jobs/{id}", h.Get)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/jobs/"+id, nil))
	return rec
}

func TestDefaultErrorResponder_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	DefaultErrorResponder(rec, httptest.NewRequest(http.MethodGet, "/x", nil), jobs.ErrJobNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeNotFound, body.Error.Code)
}

func TestJobHandlers_DefaultResponder(t *testing.T) {
	rec := getJob(NewJobHandlers(missingJobs{}, nil), "job-1")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeNotFound, body.Error.Code)
}

func TestJobHandlers_CustomResponder(t *testing.T) {
	var captured error
	h := NewJobHandlers(missingJobs{}, nil).WithErrorResponder(func(w http.ResponseWriter, _ *http.Request, err error) {
		captured = err
		w.WriteHeader(http.StatusTeapot)
	})

	rec := getJob(h, "job-1")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, captured, jobs.ErrJobNotFound)
}

func TestJobHandlers_NilResponderRestoresDefault(t *testing.T) {
	h := NewJobHandlers(missingJobs{}, nil).
		WithErrorResponder(func(w http.ResponseWriter, _ *http.Request, _ error) { w.WriteHeader(http.StatusTeapot) }).
		WithErrorResponder(nil)

	assert.Equal(t, http.StatusNotFound, getJob(h, "job-1").Code)
}

func TestHealthManager_CustomResponder(t *testing.T) {
	m := NewHealthManager("dev")
	m.RegisterChecker("repository", failing(assert.AnError))

	called := false
	m.SetErrorResponder(func(w http.ResponseWriter, _ *http.Request, err error) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})
	assert.Equal(t, http.StatusTeapot, serve(t, m.HealthHandler, "/health").Code)
	assert.True(t, called)

	m.SetErrorResponder(nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, m.HealthHandler, "/health").Code)
}
