package encoding_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/MrJamesThe3rd/finsync/internal/encoding"
)

const bundle = "QUJDREVGR0hJSktMTU5PUA=="

func utf16(t *testing.T, endian unicode.Endianness, s string) []byte {
	t.Helper()

	out, err := unicode.UTF16(endian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)

	return out
}

func TestReadText(t *testing.T) {
	type testCase struct {
		name  string
		input []byte
		want  string
	}

	tests := []testCase{
		{name: "Plain", input: []byte(bundle), want: bundle},
		{name: "TrailingNewline", input: []byte(bundle + "\r\n"), want: bundle},
		{name: "UTF8BOM", input: append([]byte{0xEF, 0xBB, 0xBF}, bundle...), want: bundle},
		{name: "UTF16LE", input: utf16(t, unicode.LittleEndian, bundle+"\n"), want: bundle},
		{name: "UTF16BE", input: utf16(t, unicode.BigEndian, bundle), want: bundle},
		{name: "Windows1252", input: []byte{'C', 'a', 'f', 0xE9}, want: "Café"},
		{name: "Empty", input: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encoding.ReadText(bytes.NewReader(tt.input), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadText_Limit(t *testing.T) {
	_, err := encoding.ReadText(strings.NewReader(strings.Repeat("A", 65)), 64)
	assert.ErrorIs(t, err, encoding.ErrTooLarge)

	got, err := encoding.ReadText(strings.NewReader(strings.Repeat("A", 64)), 64)
	require.NoError(t, err)
	assert.Len(t, got, 64)
}
