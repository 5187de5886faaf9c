package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimAndCursorRoundTrip(t *testing.T) {
	rows := []int64{1, 2, 3, 4}
	page, info := Trim(rows, 3, func(v int64) string { return strconv.FormatInt(v, 10) })
	assert.Equal(t, []int64{1, 2, 3}, page)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "3", cursor.ID)

	page, info = Trim(rows, 10, func(v int64) string { return strconv.FormatInt(v, 10) })
	assert.Len(t, page, 4)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	c, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Normalize().PageSize)
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 10000}.Normalize().PageSize)
	assert.Equal(t, 5, Pagination{PageSize: 5}.Normalize().PageSize)
}
