package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(NotFound("missing")))
	assert.Equal(t, http.StatusPaymentRequired, StatusOf(fmt.Errorf("wrapped: %w", PaymentRequired("pay"))))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("failed to save", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to save: connection reset", err.Error())
	assert.Equal(t, CodeInternal, err.Code)
}

func TestWithDetailsAndCode(t *testing.T) {
	err := BadRequest("too big").WithCode("SIZE_LIMIT").WithDetails(map[string]int{"max": 5})
	got, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "SIZE_LIMIT", got.Code)
	assert.Equal(t, map[string]int{"max": 5}, got.Details)
}
