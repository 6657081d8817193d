package errutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGracyErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Transport("GET", "/users", "https://api.example.com/users", cause)

	assert.ErrorIs(t, err, cause)
}

func TestKindOfExtractsKind(t *testing.T) {
	err := BadStatus("GET", "/users", "https://api.example.com/users", 500, nil)

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindBadStatus, kind)
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsMatchesByKindNotByIdentity(t *testing.T) {
	a := BadStatus("GET", "/users", "url", 500, nil)
	b := BadStatus("POST", "/other", "url2", 404, nil)

	assert.True(t, errors.Is(a, b), "two GracyErrors of the same kind should match via Is")

	c := Transport("GET", "/users", "url", nil)
	assert.False(t, errors.Is(a, c))
}
