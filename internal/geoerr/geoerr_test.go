package geoerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "dataset %s not registered", "flood")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(err, KindAlreadyExists))
}

func TestKindOfWrapped(t *testing.T) {
	cause := errors.New("constraint violation")
	err := Wrap(KindAlreadyExists, cause, "dataset %s already exists", "flood")

	// Kind survives further fmt wrapping.
	outer := fmt.Errorf("register: %w", err)
	assert.Equal(t, KindAlreadyExists, KindOf(outer))
	assert.ErrorIs(t, outer, cause)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestCallerError(t *testing.T) {
	assert.True(t, KindInvalidArgument.CallerError())
	assert.True(t, KindIntervalInvalid.CallerError())
	assert.True(t, KindConfigInvalid.CallerError())
	assert.False(t, KindUnknown.CallerError())
}

func TestErrorString(t *testing.T) {
	err := New(KindIntervalInvalid, "no year was provided")
	assert.Contains(t, err.Error(), "interval_invalid")
	assert.Contains(t, err.Error(), "no year was provided")
}
