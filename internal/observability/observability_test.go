package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func healthy(context.Context) (bool, error)   { return true, nil }
func unhealthy(context.Context) (bool, error) { return false, errors.New("disk not writable") }

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "tts-gateway", status.Service)
}

func TestReadinessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadinessHandler(map[string]HealthCheckFunc{"audio_store": healthy})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ReadinessHandler(map[string]HealthCheckFunc{
		"audio_store": unhealthy,
		"elevenlabs":  healthy,
	})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "not_ready", status.Status)
	assert.Equal(t, "unhealthy", status.Dependencies["audio_store"].Status)
	assert.Equal(t, "disk not writable", status.Dependencies["audio_store"].Message)
	assert.Equal(t, "healthy", status.Dependencies["elevenlabs"].Status)
}

func TestAccessLog_StoresCorrelatedLogger(t *testing.T) {
	var gotLogger *zerolog.Logger
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLogger = zerolog.Ctx(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	middleware.RequestID(AccessLog(next)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.NotNil(t, gotLogger)
	assert.NotEqual(t, zerolog.Disabled, gotLogger.GetLevel())
}

func TestLoggerFromContext_FallsBackToGlobal(t *testing.T) {
	logger := LoggerFromContext(context.Background())
	require.NotNil(t, logger)
}

func TestGRPCHealthServer_ReflectsChecks(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var ready atomic.Bool
	check := func(context.Context) (bool, error) {
		if !ready.Load() {
			return false, errors.New("starting")
		}
		return true, nil
	}

	server := NewGRPCHealthServer(map[string]HealthCheckFunc{"audio_store": check}, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	status := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: serviceName})
		if err != nil {
			return grpc_health_v1.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	require.Eventually(t, func() bool {
		return status() == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	ready.Store(true)

	require.Eventually(t, func() bool {
		return status() == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
