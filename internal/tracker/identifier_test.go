package tracker_test

import (
	"testing"

	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		token   string
		numeric bool
		id      int64
		slug    string
	}{
		{token: "42", numeric: true, id: 42},
		{token: "0", numeric: true, id: 0},
		{token: "-3", numeric: true, id: -3},
		{token: " 7 ", numeric: true, id: 7},
		{token: "042", slug: "042"},
		{token: "+42", slug: "+42"},
		{token: "42abc", slug: "42abc"},
		{token: "nightly-import-2024", slug: "nightly-import-2024"},
		{token: "99999999999999999999", slug: "99999999999999999999"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			ident, err := tracker.ParseIdentifier(tt.token)
			require.NoError(t, err)

			id, isID := ident.ID()
			slug, isSlug := ident.Slug()
			assert.Equal(t, tt.numeric, isID)
			assert.Equal(t, !tt.numeric, isSlug)
			if tt.numeric {
				assert.Equal(t, tt.id, id)
			} else {
				assert.Equal(t, tt.slug, slug)
			}
		})
	}
}

func TestParseIdentifier_Empty(t *testing.T) {
	for _, token := range []string{"", "   "} {
		_, err := tracker.ParseIdentifier(token)
		assert.ErrorIs(t, err, tracker.ErrInvalidArgument)
	}
}

func TestIdentifier_String(t *testing.T) {
	assert.Equal(t, "12", tracker.ByID(12).String())
	assert.Equal(t, "etl-run", tracker.BySlug("etl-run").String())
}
