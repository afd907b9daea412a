package generation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/social-publisher/internal/generation"
)

func TestExtractMediaURLs(t *testing.T) {
	testCases := []struct {
		name    string
		payload any
		want    []string
	}{
		{
			name: "array of url objects",
			payload: map[string]any{
				"images": []any{
					map[string]any{"url": "https://v3.fal.media/files/a.png", "width": 1024.0},
					map[string]any{"url": "https://v3.fal.media/files/b.png"},
				},
			},
			want: []string{"https://v3.fal.media/files/a.png", "https://v3.fal.media/files/b.png"},
		},
		{
			name:    "array of strings",
			payload: []any{"https://cdn.example.com/x.jpg", "not a url", "https://cdn.example.com/y.jpg"},
			want:    []string{"https://cdn.example.com/x.jpg", "https://cdn.example.com/y.jpg"},
		},
		{
			name: "single object response",
			payload: map[string]any{
				"image": map[string]any{"url": "https://files.example.org/out.webp"},
			},
			want: []string{"https://files.example.org/out.webp"},
		},
		{
			name: "deeply nested mixed shape",
			payload: map[string]any{
				"data": map[string]any{
					"outputs": []any{
						map[string]any{"variants": []any{"https://v3.fal.media/files/deep"}},
					},
				},
			},
			want: []string{"https://v3.fal.media/files/deep"},
		},
		{
			name: "duplicates collapse",
			payload: []any{
				"https://cdn.example.com/same.png",
				map[string]any{"url": "https://cdn.example.com/same.png"},
			},
			want: []string{"https://cdn.example.com/same.png"},
		},
		{
			name: "non-media strings ignored",
			payload: map[string]any{
				"status_url": "https://queue.example.run/requests/123/status",
				"seed":       42.0,
				"note":       "done",
			},
			want: nil,
		},
		{
			name:    "nil payload",
			payload: nil,
			want:    nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, generation.ExtractMediaURLs(tc.payload))
		})
	}
}

func TestExtractMediaURLs_MapOrderDeterministic(t *testing.T) {
	payload := map[string]any{
		"video": map[string]any{"url": "https://v3.fal.media/files/clip.mp4"},
		"image": map[string]any{"url": "https://v3.fal.media/files/still.png"},
	}
	want := []string{
		"https://v3.fal.media/files/still.png",
		"https://v3.fal.media/files/clip.mp4",
	}
	for i := 0; i < 50; i++ {
		assert.Equal(t, want, generation.ExtractMediaURLs(payload))
	}
}

func TestExtractMediaURLs_BoundedDepth(t *testing.T) {
	// Build a payload nested far beyond the walk bound; the buried URL must
	// be skipped rather than crash the walk.
	var payload any = "https://cdn.example.com/deep.png"
	for i := 0; i < 20; i++ {
		payload = map[string]any{"wrap": payload}
	}
	assert.Empty(t, generation.ExtractMediaURLs(payload))
}

func TestLooksLikeMediaURL(t *testing.T) {
	assert.True(t, generation.LooksLikeMediaURL("https://v3.fal.media/files/a"))
	assert.True(t, generation.LooksLikeMediaURL("https://anything.example.com/pic.JPEG"))
	assert.True(t, generation.LooksLikeMediaURL("https://cdn.provider.io/asset"))
	assert.False(t, generation.LooksLikeMediaURL("s3://bucket/pic.png"))
	assert.False(t, generation.LooksLikeMediaURL("https://api.example.com/status"))
	assert.False(t, generation.LooksLikeMediaURL("just text"))
}
