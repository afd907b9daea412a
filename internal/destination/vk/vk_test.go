package vk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/destination"
	"github.com/jonesrussell/social-publisher/internal/destination/vk"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/media"
	"github.com/jonesrussell/social-publisher/internal/models"
)

// fakeVK imitates the API host plus the separate upload server.
type fakeVK struct {
	t            *testing.T
	methodCalls  []string
	lastWallPost map[string]string
	uploadHits   int
	server       *httptest.Server
	failMethod   string
}

func newFakeVK(t *testing.T) *fakeVK {
	t.Helper()
	f := &fakeVK{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/method/", f.handleMethod)
	mux.HandleFunc("/upload", f.handleUpload)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeVK) handleMethod(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/method/")
	f.methodCalls = append(f.methodCalls, method)

	require.NoError(f.t, r.ParseForm())
	assert.Equal(f.t, "vk-token", r.PostForm.Get("access_token"))
	assert.Equal(f.t, "5.131", r.PostForm.Get("v"))

	w.Header().Set("Content-Type", "application/json")
	if method == f.failMethod {
		_, _ = w.Write([]byte(`{"error":{"error_code":214,"error_msg":"Access to adding post denied"}}`))
		return
	}

	switch method {
	case "photos.getWallUploadServer":
		assert.Equal(f.t, "987", r.PostForm.Get("group_id"))
		writeResponse(f.t, w, map[string]any{"upload_url": f.server.URL + "/upload"})
	case "photos.saveWallPhoto":
		assert.Equal(f.t, "photo-token", r.PostForm.Get("photo"))
		assert.Equal(f.t, "hash-1", r.PostForm.Get("hash"))
		writeResponse(f.t, w, []any{map[string]any{"id": 555, "owner_id": -987}})
	case "wall.post":
		f.lastWallPost = map[string]string{
			"owner_id":    r.PostForm.Get("owner_id"),
			"from_group":  r.PostForm.Get("from_group"),
			"message":     r.PostForm.Get("message"),
			"attachments": r.PostForm.Get("attachments"),
		}
		writeResponse(f.t, w, map[string]any{"post_id": 321})
	default:
		f.t.Fatalf("unexpected method %s", method)
	}
}

func (f *fakeVK) handleUpload(w http.ResponseWriter, r *http.Request) {
	f.uploadHits++
	require.NoError(f.t, r.ParseMultipartForm(64<<20))
	require.Len(f.t, r.MultipartForm.File["photo"], 1)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"server":101,"photo":"photo-token","hash":"hash-1"}`))
}

func writeResponse(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"response": v}))
}

func newClient(t *testing.T, f *fakeVK) *vk.Client {
	t.Helper()
	log := logger.NewNopLogger()
	dl := media.NewDownloader(config.MediaConfig{
		MaxDownloadBytes: 1 << 20,
		TempDir:          t.TempDir(),
	}, nil, log)
	return vk.New(vk.Config{APIBase: f.server.URL}, dl, &http.Client{}, log)
}

func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("p", 2048)))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestPublish_TextOnly(t *testing.T) {
	f := newFakeVK(t)
	c := newClient(t, f)

	result, err := c.Publish(context.Background(), destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "vk-token", AccountID: "club987"},
		Text:        "plain text post",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"wall.post"}, f.methodCalls)
	assert.Equal(t, "-987", f.lastWallPost["owner_id"])
	assert.Equal(t, "1", f.lastWallPost["from_group"])
	assert.Equal(t, "plain text post", f.lastWallPost["message"])
	assert.Equal(t, "321", result.PostID)
	assert.Equal(t, "https://vk.com/wall-987_321", result.PostURL)
}

func TestPublish_PhotoGoesThroughUploadFlow(t *testing.T) {
	f := newFakeVK(t)
	c := newClient(t, f)
	ms := mediaServer(t)

	result, err := c.Publish(context.Background(), destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "vk-token", AccountID: "987"},
		Text:        "with a photo",
		Media:       []destination.ResolvedMedia{{URL: ms.URL + "/pic.jpg", Kind: models.MediaKindImage, Upload: true}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"photos.getWallUploadServer", "photos.saveWallPhoto", "wall.post"}, f.methodCalls)
	assert.Equal(t, 1, f.uploadHits)
	assert.Equal(t, "photo-987_555", f.lastWallPost["attachments"])
	assert.Equal(t, "321", result.PostID)
}

func TestPublish_NonPhotoMediaSkipped(t *testing.T) {
	f := newFakeVK(t)
	c := newClient(t, f)

	_, err := c.Publish(context.Background(), destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "vk-token", AccountID: "987"},
		Text:        "video not supported here",
		Media:       []destination.ResolvedMedia{{URL: "https://cdn.example.com/v.mp4", Kind: models.MediaKindVideo}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"wall.post"}, f.methodCalls)
	assert.Empty(t, f.lastWallPost["attachments"])
}

func TestPublish_InBandErrorSurfaced(t *testing.T) {
	f := newFakeVK(t)
	f.failMethod = "wall.post"
	c := newClient(t, f)

	_, err := c.Publish(context.Background(), destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "vk-token", AccountID: "987"},
		Text:        "denied",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access to adding post denied")
}

func TestPublish_MissingGroupID(t *testing.T) {
	f := newFakeVK(t)
	c := newClient(t, f)

	_, err := c.Publish(context.Background(), destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "vk-token"},
		Text:        "no group",
	})
	require.Error(t, err)
	assert.Empty(t, f.methodCalls)
}
