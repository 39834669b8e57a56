package materialize

import (
	"testing"

	"github.com/agentic-research/rowcast/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCast(t *testing.T) {
	tests := []struct {
		typ  config.Type
		in   string
		want string
	}{
		{config.TypeString, "hello", "hello"},
		{config.TypeInt, "42", "42"},
		{config.TypeInt, "1,234", "1234"},
		{config.TypeInt, "(15)", "-15"},
		{config.TypeInt, "7.00", "7"},
		{config.TypeDecimal, "100.50", "100.50"},
		{config.TypeDecimal, "$1,234.5", "1234.5"},
		{config.TypeDecimal, "-.5", "-0.5"},
		{config.TypeDecimal, "(3.25)", "-3.25"},
		{config.TypeBool, "Yes", "true"},
		{config.TypeBool, "0", "false"},
		{config.TypeDate, "2026-03-01", "2026-03-01"},
		{config.TypeDate, "03/01/2026", "2026-03-01"},
		{config.TypeDate, "2026-03-01T10:00:00Z", "2026-03-01"},
		{config.TypeDatetime, "2026-03-01T10:15:30Z", "2026-03-01T10:15:30Z"},
		{config.TypeDatetime, "2026-03-01T10:15:30+02:00", "2026-03-01T10:15:30+02:00"},
		{config.TypeDatetime, "2026-03-01 10:15:30", "2026-03-01T10:15:30"},
		{config.TypeDatetime, "2026-03-01", "2026-03-01T00:00:00"},
		{config.TypeJSON, `{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String()+"/"+tt.in, func(t *testing.T) {
			v, err := Cast(tt.typ, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(v))
		})
	}
}

func TestCastErrors(t *testing.T) {
	tests := []struct {
		typ config.Type
		in  string
	}{
		{config.TypeInt, "7.5"},
		{config.TypeInt, "abc"},
		{config.TypeInt, "99999999999999999999"},
		{config.TypeDecimal, "1e5"},
		{config.TypeDecimal, "1.2.3"},
		{config.TypeBool, "maybe"},
		{config.TypeDate, "yesterday"},
		{config.TypeDatetime, "25:00"},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String()+"/"+tt.in, func(t *testing.T) {
			_, err := Cast(tt.typ, tt.in)
			assert.ErrorIs(t, err, ErrCast)
		})
	}
}

func TestFloat(t *testing.T) {
	v, err := Cast(config.TypeDecimal, "-50")
	require.NoError(t, err)
	f, ok := Float(v)
	require.True(t, ok)
	assert.Equal(t, -50.0, f)

	f, ok = Float(int64(3))
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	_, ok = Float("x")
	assert.False(t, ok)
}
