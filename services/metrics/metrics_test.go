package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct{}

func (fakeHub) Sent() int64    { return 7 }
func (fakeHub) Dropped() int64 { return 2 }
func (fakeHub) Total() int     { return 3 }

func TestRegisterHub(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterHub(reg, fakeHub{}))
	assert.Error(t, RegisterHub(reg, fakeHub{}))

	expected := `
# HELP admissions_realtime_sessions Current number of connected sessions.
# TYPE admissions_realtime_sessions gauge
admissions_realtime_sessions 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "admissions_realtime_sessions"))
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/users/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/users/:id", "204"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/42", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/users/:id", "204")))

	RecordTransition("approved")
	assert.Equal(t, float64(1), testutil.ToFloat64(transitions.WithLabelValues("approved")))
}

func TestMiddlewareRecordsHandledErrorStatus(t *testing.T) {
	e := echo.New()
	var handled int
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		handled++
		if !c.Response().Committed {
			_ = c.JSON(http.StatusForbidden, map[string]string{"message": err.Error()})
		}
	}
	e.Use(Middleware())
	e.GET("/api/applications", func(c echo.Context) error {
		return errors.Wrap(errors.New("permission denied"), "querying applications")
	})

	labels := []string{"GET", "/api/applications"}
	before403 := testutil.ToFloat64(httpRequests.WithLabelValues(append(labels, "403")...))
	before200 := testutil.ToFloat64(httpRequests.WithLabelValues(append(labels, "200")...))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/applications", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, handled, "the error is handled once")
	assert.Equal(t, before403+1, testutil.ToFloat64(httpRequests.WithLabelValues(append(labels, "403")...)))
	assert.Equal(t, before200, testutil.ToFloat64(httpRequests.WithLabelValues(append(labels, "200")...)))
}
