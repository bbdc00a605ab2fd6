package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorTokenIsOpaqueAndStable(t *testing.T) {
	at := time.Date(2024, 11, 15, 8, 30, 0, 123456789, time.UTC)
	token, err := EncodeCursor(Cursor{ID: 42, CreatedAt: at})
	require.NoError(t, err)
	assert.NotContains(t, token, "=")

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), decoded.ID)
	assert.True(t, decoded.CreatedAt.Equal(at))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"not-base64!", "e30", "eyJpZCI6IjAiLCJjcmVhdGVkX2F0IjoiMjAyNC0wMS0wMVQwMDowMDowMFoifQ"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidPageToken, token)
	}
}

func TestPageSizeClamps(t *testing.T) {
	assert.Equal(t, DefaultPageSize, PageSize(0))
	assert.Equal(t, DefaultPageSize, PageSize(-3))
	assert.Equal(t, 7, PageSize(7))
	assert.Equal(t, MaxPageSize, PageSize(10_000))
}

func TestTrimBuildsNextToken(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cursorOf := func(n int) Cursor { return Cursor{ID: int64(n), CreatedAt: base} }

	items, info, err := Trim([]int{5, 4, 3}, 2, cursorOf)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4}, items)
	assert.True(t, info.HasMore)

	next, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, int64(4), next.ID)

	items, info, err = Trim([]int{2, 1}, 2, cursorOf)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
