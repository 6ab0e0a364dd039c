package modelerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := Newf(CodeUnknownLevel, "level %q not found", "level3").With("level", "level3")
	wrapped := fmt.Errorf("model demo: %w", err)

	assert.True(t, errors.Is(wrapped, ErrUnknownLevel))
	assert.False(t, errors.Is(wrapped, ErrDuplicateIdentifier))

	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeUnknownLevel, code)
}

func TestErrorStringIncludesContextAndCause(t *testing.T) {
	err := New(CodeGroupingMismatch, "state omitted").
		With("param", "mean").
		With("state", "4").
		WithCause(errors.New("boom"))

	assert.Equal(t, `GROUPING_MISMATCH: state omitted (param="mean", state="4"): boom`, err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
}

func TestCodeOfPlainError(t *testing.T) {
	_, ok := CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestDidYouMean(t *testing.T) {
	got := DidYouMean("gama", []string{"gamma", "zigamma", "vm", "norm"})
	require.NotEmpty(t, got)
	assert.Equal(t, `did you mean "gamma"?`, got[0])
	assert.Nil(t, DidYouMean("", []string{"gamma"}))
	assert.Empty(t, DidYouMean("xyz", []string{"gamma"}))
}

func TestWithSuggestionSkipsBlank(t *testing.T) {
	err := New(CodeInvalidDefinition, "bad").WithSuggestion("", "  ", "fix it")
	assert.Equal(t, []string{"fix it"}, err.Suggestions)
}
