package status

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromResponse(t *testing.T) {
	for _, toPin := range []struct {
		code     int
		expected error
	}{
		{code: http.StatusConflict, expected: ErrConflict},
		{code: http.StatusUnauthorized, expected: ErrUnauthorized},
		{code: http.StatusForbidden, expected: ErrUnauthorized},
		{code: http.StatusNotFound, expected: ErrNotFound},
		{code: http.StatusInternalServerError, expected: ErrRejected},
	} {
		fixture := toPin
		t.Run(http.StatusText(fixture.code), func(t *testing.T) {
			t.Parallel()
			err := FromResponse(fixture.code, "item is locked by bob")
			require.Error(t, err)
			assert.True(t, errors.Is(err, fixture.expected))
			assert.True(t, errors.Is(err, ErrRejected))

			var rerr *ResponseError
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, fixture.code, rerr.StatusCode)
			assert.Equal(t, "item is locked by bob", rerr.Message)
			assert.Contains(t, err.Error(), "item is locked by bob")
		})
	}

	assert.Equal(t, "HTTP 502 Bad Gateway", (&ResponseError{StatusCode: 502}).Error())
}
