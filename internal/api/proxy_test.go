package api_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/social-publisher/internal/api"
	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/logger"
)

func proxyRouter(t *testing.T, storageHost string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	proxy := api.NewMediaProxy(config.MediaConfig{
		StorageHosts: []string{storageHost},
	}, "store-token", logger.NewNopLogger())

	router := gin.New()
	router.GET("/media/proxy", proxy.Stream)
	return router
}

func TestMediaProxy_StreamsFromAllowedHost(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer store-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer origin.Close()

	originURL, err := url.Parse(origin.URL)
	require.NoError(t, err)
	router := proxyRouter(t, originURL.Host)

	req := httptest.NewRequest(http.MethodGet, "/media/proxy?url="+url.QueryEscape(origin.URL+"/img.png"), http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", w.Body.String())
}

func TestMediaProxy_RejectsUnlistedHost(t *testing.T) {
	router := proxyRouter(t, "storage.internal")

	req := httptest.NewRequest(http.MethodGet, "/media/proxy?url="+url.QueryEscape("https://evil.example.com/a.png"), http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMediaProxy_RequiresURL(t *testing.T) {
	router := proxyRouter(t, "storage.internal")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/media/proxy", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/media/proxy?url=/relative/path.png", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMediaProxy_OriginFailureIsBadGateway(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer origin.Close()

	originURL, err := url.Parse(origin.URL)
	require.NoError(t, err)
	router := proxyRouter(t, originURL.Host)

	req := httptest.NewRequest(http.MethodGet, "/media/proxy?url="+url.QueryEscape(origin.URL+"/img.png"), http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
