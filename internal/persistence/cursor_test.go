package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/salestrack/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{RecordDate: time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC), ID: 42}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = DecodeCursor("not base64!")
	require.Error(t, err)

	_, err = DecodeCursor("MjAyNC0wNi0wMw") // "2024-06-03" without an id
	require.Error(t, err)
}
