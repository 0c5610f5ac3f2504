package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	return r
}

func TestRequestID_Generated(t *testing.T) {
	r := newRouter(RequestID())
	var fromCtx string
	r.GET("/ping", func(c *gin.Context) {
		fromCtx = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotEmpty(t, fromCtx)
	assert.Equal(t, fromCtx, w.Header().Get(HeaderRequestID))
}

func TestRequestID_Propagated(t *testing.T) {
	r := newRouter(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestIdentity(t *testing.T) {
	r := newRouter(Identity())
	var user, session string
	r.GET("/me", func(c *gin.Context) {
		user, session = UserID(c), SessionID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "user_1")
	req.Header.Set(HeaderSessionID, "sess_1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user_1", user)
	assert.Equal(t, "sess_1", session)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, user)
	assert.Empty(t, session)
}

func TestCORS_Preflight(t *testing.T) {
	r := newRouter(CORS([]string{"*"}))
	r.POST("/calc", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/calc", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsAndLogger(t *testing.T) {
	r := newRouter(RequestID(), Metrics(), Logger())
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPublicCORS_PreflightIsOK(t *testing.T) {
	r := newRouter()
	g := r.Group("/functions/v1", PublicCORS())
	g.POST("/calculate-order-total", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.OPTIONS("/calculate-order-total", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/calculate-order-total", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestExcept_SkipsPrefix(t *testing.T) {
	calls := 0
	counting := func(c *gin.Context) { calls++ }
	r := newRouter(Except("/functions/", counting))
	r.GET("/functions/v1/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/functions/v1/x", nil))
	assert.Equal(t, 0, calls)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/x", nil))
	assert.Equal(t, 1, calls)
}
