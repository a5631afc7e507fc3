package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceError_IsByCode(t *testing.T) {
	err := fmt.Errorf("load profile: %w", NotFound("profile missing"))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsDecode(err))
	assert.True(t, stderrors.Is(err, &ServiceError{Code: CodeNotFound}))
}

func TestServiceError_UnwrapKeepsCause(t *testing.T) {
	cause := stderrors.New("rpc timeout")
	err := Submission("create_post rejected", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
	assert.Contains(t, err.Error(), "rpc timeout")
}

func TestWithDetails_DoesNotMutateOriginal(t *testing.T) {
	base := Precondition("viewer identity required")
	detailed := base.WithDetails("op", "build_feed")

	assert.Nil(t, base.Details)
	require.NotNil(t, detailed.Details)
	assert.Equal(t, "build_feed", detailed.Details["op"])
	assert.True(t, IsPrecondition(detailed))
}

func TestGetServiceError_Plain(t *testing.T) {
	assert.Nil(t, GetServiceError(stderrors.New("plain")))
}
