package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("missing name"), http.StatusBadRequest},
		{"authorization", Authorization("bad secret"), http.StatusUnauthorized},
		{"conflict", Conflict("slug exists"), http.StatusConflict},
		{"not found", NotFound("no order"), http.StatusNotFound},
		{"upstream", Upstream("gateway", `{"error":"x"}`, nil), http.StatusBadGateway},
		{"configuration", Configuration("no key"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("create: %w", Conflict("dup")), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Upstream("create gateway order", "", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindUpstream))
	assert.False(t, Is(nil, KindUpstream))
	assert.Contains(t, err.Error(), "upstream")
}
