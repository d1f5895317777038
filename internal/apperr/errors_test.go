package apperr

import (
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := eris.Wrap(NotFound(CodeMetricNotFound, "metric %d not found", 4), "resolver: load metric")

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, CodeMetricNotFound, CodeOf(err))

	ae, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "metric 4 not found", ae.Message)
}

func TestKindOf_Unclassified(t *testing.T) {
	err := eris.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Empty(t, CodeOf(err))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestError_Message(t *testing.T) {
	e := Conflict(CodeProjectionExists, "projection exists")
	assert.Equal(t, "PROJECTION_EXISTS: projection exists", e.Error())

	e.Err = eris.New("duplicate")
	assert.Contains(t, e.Error(), "duplicate")
	assert.NotNil(t, e.Unwrap())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindComputation, http.StatusUnprocessableEntity},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}
