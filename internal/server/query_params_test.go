package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	qty, err := parseQuantity("")
	require.NoError(t, err)
	assert.Equal(t, "1", qty.String())

	qty, err = parseQuantity(" 12.5 ")
	require.NoError(t, err)
	assert.Equal(t, "12.5", qty.String())

	_, err = parseQuantity("ten")
	assert.Error(t, err)
}

func TestParseOptionalBool(t *testing.T) {
	v, err := parseOptionalBool("")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = parseOptionalBool("true")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, *v)

	_, err = parseOptionalBool("maybe")
	assert.Error(t, err)
}

func TestParseOptionalInt(t *testing.T) {
	n, err := parseOptionalInt("", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	n, err = parseOptionalInt("7", 50)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
