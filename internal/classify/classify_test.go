package classify_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/social-publisher/internal/classify"
	"github.com/jonesrussell/social-publisher/internal/httperr"
)

func TestClassify_KeywordTable(t *testing.T) {
	testCases := []struct {
		name               string
		message            string
		wantKind           classify.Kind
		wantRetryable      bool
		wantCritical       bool
		wantRequiresAction bool
	}{
		{
			name:          "connection refused is network",
			message:       "dial tcp 10.0.0.1:443: connection refused",
			wantKind:      classify.KindNetwork,
			wantRetryable: true,
		},
		{
			name:          "timeout is network",
			message:       "context deadline exceeded",
			wantKind:      classify.KindNetwork,
			wantRetryable: true,
		},
		{
			name:               "unauthorized is authentication",
			message:            "Unauthorized: invalid token provided",
			wantKind:           classify.KindAuthentication,
			wantCritical:       true,
			wantRequiresAction: true,
		},
		{
			name:               "rate limit is quota",
			message:            "Too Many Requests: rate limit exceeded",
			wantKind:           classify.KindQuota,
			wantRequiresAction: true,
		},
		{
			name:               "bad request is validation",
			message:            "Bad Request: message caption is too long",
			wantKind:           classify.KindValidation,
			wantRequiresAction: true,
		},
		{
			name:          "internal server error is server",
			message:       "upstream returned internal server error",
			wantKind:      classify.KindServer,
			wantRetryable: true,
		},
		{
			name:     "not found is client",
			message:  "chat not found",
			wantKind: classify.KindClient,
		},
		{
			name:         "unmatched is unknown and critical",
			message:      "something inexplicable happened",
			wantKind:     classify.KindUnknown,
			wantCritical: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := classify.Classify(errors.New(tc.message))
			assert.Equal(t, tc.wantKind, c.Kind)
			assert.Equal(t, tc.wantRetryable, c.IsRetryable)
			assert.Equal(t, tc.wantCritical, c.IsCritical)
			assert.Equal(t, tc.wantRequiresAction, c.RequiresUserAction)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	err := errors.New("connection reset by peer")
	first := classify.Classify(err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, classify.Classify(err))
	}
}

func TestClassify_StatusCodeWins(t *testing.T) {
	// The status code should drive classification even when the body text
	// would match a different category.
	err := &httperr.Error{StatusCode: 503, Status: "503 Service Unavailable", Message: "invalid state"}
	c := classify.Classify(err)
	assert.Equal(t, classify.KindServer, c.Kind)
	assert.True(t, c.IsRetryable)

	err = &httperr.Error{StatusCode: 401, Status: "401 Unauthorized"}
	c = classify.Classify(err)
	assert.Equal(t, classify.KindAuthentication, c.Kind)
	assert.False(t, c.IsRetryable)
	assert.True(t, c.RequiresUserAction)
}

func TestClassify_NilError(t *testing.T) {
	assert.Equal(t, classify.Classification{}, classify.Classify(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, classify.IsRetryable(errors.New("i/o timeout")))
	assert.False(t, classify.IsRetryable(errors.New("access denied")))
	assert.False(t, classify.IsRetryable(nil))
}
