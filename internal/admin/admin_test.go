package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pingpong/internal/logging"
	"pingpong/internal/metrics"
	"pingpong/internal/shared"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Sessions() []shared.SessionInfo {
	args := m.Called()
	return args.Get(0).([]shared.SessionInfo)
}

func (m *mockRegistry) Session(id string) (shared.SessionInfo, bool) {
	args := m.Called(id)
	return args.Get(0).(shared.SessionInfo), args.Bool(1)
}

func (m *mockRegistry) CloseSession(id, reason string) error {
	args := m.Called(id, reason)
	return args.Error(0)
}

var testSessions = []shared.SessionInfo{
	{ID: "a", RemoteAddr: "127.0.0.1:50000", ConnectedAt: time.Unix(100, 0).UTC(), Requests: 3},
	{ID: "b", RemoteAddr: "127.0.0.1:50001", ConnectedAt: time.Unix(200, 0).UTC(), Datagrams: 7},
}

func setup(t *testing.T) (*mockRegistry, *metrics.Metrics, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := new(mockRegistry)
	m := metrics.New()
	return reg, m, NewHandler(reg, m, logging.Discard()).Router()
}

func serve(r *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHealth(t *testing.T) {
	reg, _, r := setup(t)
	reg.On("Sessions").Return(testSessions)

	w := serve(r, http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["sessions"])
}

func TestListSessions(t *testing.T) {
	reg, _, r := setup(t)
	reg.On("Sessions").Return(testSessions)

	w := serve(r, http.MethodGet, "/sessions")

	require.Equal(t, http.StatusOK, w.Code)
	var got []shared.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, testSessions, got)
}

func TestGetSession(t *testing.T) {
	reg, _, r := setup(t)
	reg.On("Session", "b").Return(testSessions[1], true).Once()
	reg.On("Session", "zzz").Return(shared.SessionInfo{}, false).Once()

	w := serve(r, http.MethodGet, "/sessions/b")
	require.Equal(t, http.StatusOK, w.Code)
	var got shared.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, uint64(7), got.Datagrams)

	w = serve(r, http.MethodGet, "/sessions/zzz")
	assert.Equal(t, http.StatusNotFound, w.Code)

	reg.AssertExpectations(t)
	reg.AssertNotCalled(t, "Sessions")
}

func TestCloseSession(t *testing.T) {
	tests := []struct {
		name   string
		target string
		reason string
		err    error
		status int
	}{
		{"closed", "/sessions/a", "closed by admin", nil, http.StatusNoContent},
		{"custom reason", "/sessions/a?reason=maintenance", "maintenance", nil, http.StatusNoContent},
		{"unknown", "/sessions/zzz", "closed by admin", fmt.Errorf("%w: zzz", shared.ErrSessionNotFound), http.StatusNotFound},
		{"close failed", "/sessions/a", "closed by admin", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _, r := setup(t)
			id := strings.TrimPrefix(strings.SplitN(tt.target, "?", 2)[0], "/sessions/")
			reg.On("CloseSession", id, tt.reason).Return(tt.err).Once()

			w := serve(r, http.MethodDelete, tt.target)

			assert.Equal(t, tt.status, w.Code)
			reg.AssertExpectations(t)
		})
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	reg, _, r := setup(t)
	reg.On("Sessions").Return(testSessions)

	serve(r, http.MethodGet, "/sessions")
	serve(r, http.MethodGet, "/nope")
	w := serve(r, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `pingpong_admin_requests_total{method="GET",path="/sessions",status="200"} 1`)
	assert.Contains(t, body, `pingpong_admin_requests_total{method="GET",path="unmatched",status="404"} 1`)
}

func TestRouterWithoutMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := new(mockRegistry)
	r := NewHandler(reg, nil, logging.Discard()).Router()

	w := serve(r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
