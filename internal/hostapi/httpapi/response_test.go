package httpapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"watcherd/internal/domain"
)

func TestSuccess(t *testing.T) {
	r := success(map[string]int{"n": 1})
	assert.True(t, r.Success)
	assert.Nil(t, r.Error)
	assert.Equal(t, map[string]int{"n": 1}, r.Data)
}

func TestErrorResponse(t *testing.T) {
	t.Run("domain error preserves code, message, and details", func(t *testing.T) {
		de := domain.NewErrorf(domain.CodeValidation, "identifier is required")
		de.Details = map[string]any{"field": "identifier"}

		r := errorResponse(de)
		assert.False(t, r.Success)
		assert.Nil(t, r.Data)
		assert.Equal(t, "VALIDATION", r.Error.Code)
		assert.Equal(t, "identifier is required", r.Error.Message)
		assert.Equal(t, map[string]any{"field": "identifier"}, r.Error.Details)
	})

	t.Run("unclassified error falls back to INTERNAL", func(t *testing.T) {
		r := errorResponse(errors.New("boom"))
		assert.False(t, r.Success)
		assert.Equal(t, "INTERNAL", r.Error.Code)
		assert.Equal(t, "boom", r.Error.Message)
	})
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.NewErrorf(domain.CodeValidation, "x"), 400},
		{"not found", domain.NewErrorf(domain.CodeNotFound, "x"), 404},
		{"duplicate site", domain.NewErrorf(domain.CodeDuplicateSiteIdentifier, "x"), 409},
		{"duplicate monitor", domain.NewErrorf(domain.CodeDuplicateMonitorID, "x"), 409},
		{"no monitors", domain.NewErrorf(domain.CodeNoMonitors, "x"), 422},
		{"schema newer", domain.NewErrorf(domain.CodeSchemaNewer, "x"), 409},
		{"integrity failed", domain.NewErrorf(domain.CodeIntegrityFailed, "x"), 409},
		{"timeout", domain.NewErrorf(domain.CodeTimeout, "x"), 504},
		{"cancelled", domain.NewErrorf(domain.CodeCancelled, "x"), 499},
		{"internal", domain.NewErrorf(domain.CodeInternal, "x"), 500},
		{"plain error", errors.New("boom"), 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, httpStatus(tc.err))
		})
	}
}
