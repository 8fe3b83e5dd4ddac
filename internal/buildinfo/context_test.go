package buildinfo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Version(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: NewContext("", "2026-01-01", "x"), want: UnknownValue},
		{name: "valid version", ctx: NewContext("1.2.0", "2026-01-01", "x"), want: "1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.ctx.GetVersion())
		})
	}
}

func TestContext_BuildDate(t *testing.T) {
	t.Parallel()

	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.GetBuildDate())
	assert.Equal(t, UnknownValue, NewContext("1", "", "x").GetBuildDate())
	assert.Equal(t, "2026-01-01", NewContext("1", "2026-01-01", "x").GetBuildDate())
}

func TestNewContext_GeneratesInstanceID(t *testing.T) {
	t.Parallel()

	ctx := NewContext("1", "2026-01-01", "")
	_, err := uuid.Parse(ctx.GetInstanceID())
	require.NoError(t, err)

	assert.Equal(t, "fixed", NewContext("1", "", "fixed").GetInstanceID())

	var b BuildInfo = ctx
	assert.NotEqual(t, UnknownValue, b.GetInstanceID())
}
