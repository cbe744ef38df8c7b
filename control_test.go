package expect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseControl(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		want ControlCode
	}{
		{`ctrl+c`, EndOfText},
		{`Ctrl+C`, EndOfText},
		{`^C`, EndOfText},
		{`^c`, EndOfText},
		{`ctrl+d`, EndOfTransmission},
		{`ctrl+]`, GroupSeparator},
		{`^]`, GroupSeparator},
		{`^[`, Escape},
		{`ctrl+@`, Null},
		{`^_`, UnitSeparator},
		{`ctrl+\`, FileSeparator},
		{`eot`, EndOfTransmission},
		{` ETX `, EndOfText},
		{`nul`, Null},
		{`us`, UnitSeparator},
		{`enter`, CarriageReturn},
		{`tab`, HorizontalTab},
		{`escape`, Escape},
		{`backspace`, Delete},
		{`del`, Delete},
		{`^?`, Delete},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseControl(tc.name)
			if assert.NoError(t, err) {
				assert.Equal(t, tc.want, got)
			}
		})
	}

	for _, name := range [...]string{``, `ctrl+`, `ctrl+cc`, `^1`, `c`, `ctrl+~`, `bogus`} {
		t.Run(`invalid `+name, func(t *testing.T) {
			_, err := ParseControl(name)
			assert.Error(t, err)
		})
	}
}

func TestControlCode(t *testing.T) {
	assert.Equal(t, byte(3), EndOfText.Byte())
	assert.Equal(t, `etx`, EndOfText.String())
	assert.Equal(t, `del`, Delete.String())
	assert.Equal(t, `ControlCode(0x41)`, ControlCode('A').String())
	assert.True(t, Escape.Valid())
	assert.True(t, Delete.Valid())
	assert.False(t, ControlCode(' ').Valid())

	// every mnemonic round trips
	for c := Null; c <= UnitSeparator; c++ {
		got, err := ParseControl(c.String())
		if assert.NoError(t, err) {
			assert.Equal(t, c, got)
		}
	}
}
