package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okDB(t *testing.T) CheckFunc {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	return DatabaseCheck(db)
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker("v1").
			Require("database", okDB(t)).
			Optional("redis", RedisCheck(client)).
			Check(context.Background())

		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, "v1", status.Version)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
	})

	t.Run("database down", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("connection refused"))

		status := NewHealthChecker("").Require("database", DatabaseCheck(db)).Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Contains(t, status.Dependencies["database"].Message, "connection refused")
	})

	t.Run("optional failure degrades", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker("").
			Require("database", okDB(t)).
			Optional("redis", RedisCheck(client)).
			Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("required degraded", func(t *testing.T) {
		status := NewHealthChecker("").
			Require("replicas", func(context.Context) error {
				return errors.Join(ErrDegraded, errors.New("replica-1 lagging"))
			}).
			Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Contains(t, status.Dependencies["replicas"].Message, "replica-1 lagging")
	})

	t.Run("required failure wins", func(t *testing.T) {
		status := NewHealthChecker("").
			Optional("redis", func(context.Context) error { return errors.New("down") }).
			Require("central_tenant", func(context.Context) error { return errors.New("not provisioned") }).
			Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
	})
}

func TestHealthRoutes(t *testing.T) {
	router := mux.NewRouter()
	RegisterHealthRoutes(router, NewHealthChecker("").
		Require("database", func(context.Context) error { return errors.New("down") }))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "down", status.Dependencies["database"].Message)
}
