package audit

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHasMultipleDisplays(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		want    bool
		wantErr error
	}{
		{name: "Single display", count: 1, want: false},
		{name: "Two displays", count: 2, want: true},
		{name: "Four displays", count: 4, want: true},
		{name: "No displays", count: 0, wantErr: ErrNoDisplays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTopologyChecker(&fakeDisplays{n: tt.count})
			got, err := c.HasMultipleDisplays()
			if tt.wantErr != nil {
				var enumErr *EnumerationError
				require.True(t, errors.As(err, &enumErr))
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasMultipleDisplaysEnumeratorFailure(t *testing.T) {
	cause := errors.New("RandR unavailable")
	c := NewTopologyChecker(&fakeDisplays{err: cause})

	_, err := c.HasMultipleDisplays()

	var enumErr *EnumerationError
	require.True(t, errors.As(err, &enumErr))
	assert.Equal(t, cause, enumErr.Err)
}

func TestHasMultipleDisplaysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 16).Draw(t, "displays")
		got, err := NewTopologyChecker(&fakeDisplays{n: n}).HasMultipleDisplays()

		if n == 0 {
			assert.True(t, errors.Is(err, ErrNoDisplays))
			assert.False(t, got)
			return
		}
		assert.NoError(t, err)
		assert.Equal(t, n > 1, got)
	})
}
