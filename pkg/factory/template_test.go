package factory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndSubstitute(t *testing.T) {
	tokens, err := Parse("echo {0} and {1}, {{literal}} done")
	require.NoError(t, err)

	out, err := Substitute(tokens, map[string]string{"0": "a", "1": "b"})
	require.NoError(t, err)
	require.Equal(t, "echo a and b, {literal} done", out)
}

func TestParseEmptyBracesIsIndexZero(t *testing.T) {
	tokens, err := Parse("value={}")
	require.NoError(t, err)
	out, err := Substitute(tokens, map[string]string{"0": "x"})
	require.NoError(t, err)
	require.Equal(t, "value=x", out)
}

func TestParseUnterminatedPlaceholderErrors(t *testing.T) {
	_, err := Parse("echo {0")
	require.Error(t, err)
}

func TestSubstituteMissingValueErrors(t *testing.T) {
	tokens, err := Parse("echo {0}")
	require.NoError(t, err)
	_, err = Substitute(tokens, map[string]string{})
	require.Error(t, err)
}

func TestValidateIndicesCatchesUnused(t *testing.T) {
	tokens, err := Parse("echo {0}")
	require.NoError(t, err)
	err = ValidateIndices(tokens, 2)
	require.Error(t, err)
}

func TestValidateIndicesCatchesOutOfRange(t *testing.T) {
	tokens, err := Parse("echo {5}")
	require.NoError(t, err)
	err = ValidateIndices(tokens, 2)
	require.Error(t, err)
}

func TestValidateIndicesIgnoresNamedPlaceholders(t *testing.T) {
	tokens, err := Parse("echo {file_name}")
	require.NoError(t, err)
	err = ValidateIndices(tokens, 0)
	require.NoError(t, err)
}
