package instagram_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/social-publisher/internal/destination"
	"github.com/jonesrussell/social-publisher/internal/destination/instagram"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/models"
)

// fakeGraph drives the container flow: create, N status checks, publish.
type fakeGraph struct {
	t              *testing.T
	statusSequence []string
	statusCalls    atomic.Int32
	published      atomic.Bool
	server         *httptest.Server
}

func newFakeGraph(t *testing.T, statusSequence []string) *fakeGraph {
	t.Helper()
	f := &fakeGraph{t: t, statusSequence: statusSequence}
	mux := http.NewServeMux()
	mux.HandleFunc("/ig-user-1/media", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://cdn.example.com/a.jpg", r.PostForm.Get("image_url"))
		assert.Equal(t, "ig caption", r.PostForm.Get("caption"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"container-1"}`))
	})
	mux.HandleFunc("/container-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		call := int(f.statusCalls.Add(1)) - 1
		if call >= len(f.statusSequence) {
			call = len(f.statusSequence) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status_code":"` + f.statusSequence[call] + `"}`))
	})
	mux.HandleFunc("/ig-user-1/media_publish", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "container-1", r.PostForm.Get("creation_id"))
		f.published.Store(true)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ig-post-9"}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newClient(f *fakeGraph) *instagram.Client {
	return instagram.New(instagram.Config{
		APIBase:      f.server.URL,
		PollInterval: 5 * time.Millisecond,
	}, &http.Client{}, logger.NewNopLogger())
}

func igRequest() destination.PublishRequest {
	return destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "ig-token", AccountID: "ig-user-1"},
		Text:        "ig caption",
		Media:       []destination.ResolvedMedia{{URL: "https://cdn.example.com/a.jpg", Kind: models.MediaKindImage}},
	}
}

func TestPublish_TwoPhaseFlow(t *testing.T) {
	f := newFakeGraph(t, []string{"IN_PROGRESS", "FINISHED"})

	result, err := newClient(f).Publish(context.Background(), igRequest())
	require.NoError(t, err)

	assert.True(t, f.published.Load())
	assert.Equal(t, int32(2), f.statusCalls.Load())
	assert.Equal(t, "ig-post-9", result.PostID)
	assert.Equal(t, "https://www.instagram.com/p/ig-post-9", result.PostURL)
}

func TestPublish_ContainerErrorFailsWithoutPublishing(t *testing.T) {
	f := newFakeGraph(t, []string{"ERROR"})

	_, err := newClient(f).Publish(context.Background(), igRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container failed")
	assert.False(t, f.published.Load())
}

func TestPublish_TextOnlyRejected(t *testing.T) {
	f := newFakeGraph(t, []string{"FINISHED"})

	req := igRequest()
	req.Media = nil
	_, err := newClient(f).Publish(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires image media")
}
