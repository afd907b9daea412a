package facebook_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/social-publisher/internal/destination"
	"github.com/jonesrussell/social-publisher/internal/destination/facebook"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/models"
)

func newClient(serverURL string) *facebook.Client {
	return facebook.New(facebook.Config{APIBase: serverURL}, &http.Client{}, logger.NewNopLogger())
}

func TestPublish_TextGoesToFeed(t *testing.T) {
	var gotPath, gotMessage, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotMessage = r.PostForm.Get("message")
		gotToken = r.PostForm.Get("access_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"page_post_1"}`))
	}))
	defer server.Close()

	result, err := newClient(server.URL).Publish(context.Background(), destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "fb-token", AccountID: "page99"},
		Text:        "hello feed",
	})
	require.NoError(t, err)

	assert.Equal(t, "/page99/feed", gotPath)
	assert.Equal(t, "hello feed", gotMessage)
	assert.Equal(t, "fb-token", gotToken)
	assert.Equal(t, "page_post_1", result.PostID)
	assert.Equal(t, "https://www.facebook.com/page_post_1", result.PostURL)
}

func TestPublish_ImageGoesToPhotos(t *testing.T) {
	var gotPath, gotURL, gotCaption string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotURL = r.PostForm.Get("url")
		gotCaption = r.PostForm.Get("caption")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"photo_1","post_id":"page99_777"}`))
	}))
	defer server.Close()

	result, err := newClient(server.URL).Publish(context.Background(), destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "fb-token", AccountID: "page99"},
		Text:        "look at this",
		Media:       []destination.ResolvedMedia{{URL: "https://cdn.example.com/a.jpg", Kind: models.MediaKindImage}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/page99/photos", gotPath)
	assert.Equal(t, "https://cdn.example.com/a.jpg", gotURL)
	assert.Equal(t, "look at this", gotCaption)
	assert.Equal(t, "page99_777", result.PostID, "post_id preferred over photo id")
}

func TestPublish_GraphErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
	}))
	defer server.Close()

	_, err := newClient(server.URL).Publish(context.Background(), destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "bad", AccountID: "page99"},
		Text:        "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid OAuth access token")
}

func TestPublish_MissingPageID(t *testing.T) {
	_, err := newClient("http://127.0.0.1:0").Publish(context.Background(), destination.PublishRequest{
		Credentials: models.DestinationCredentials{Token: "fb-token"},
		Text:        "x",
	})
	assert.Error(t, err)
}
