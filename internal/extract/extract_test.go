package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	assert.Equal(t, "application/pdf", Detect([]byte("%PDF-1.7 fake body")))
	assert.True(t, strings.HasPrefix(Detect([]byte("plain notes about the meeting")), "text/plain"))
}

func TestIsTextual(t *testing.T) {
	assert.True(t, IsTextual([]byte("quarterly revenue grew 12% over the prior period")))
	assert.True(t, IsTextual([]byte(`{"invoice":{"total":152.50,"currency":"THB"}}`)))
	assert.False(t, IsTextual([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}))
	assert.False(t, IsTextual(nil))
}

func TestTextReturnsEmptyForBinary(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}
	assert.Empty(t, Text(png))
}

func TestTextTrimsAndTruncates(t *testing.T) {
	assert.Equal(t, "hello world", Text([]byte("  hello world\n\n")))

	long := strings.Repeat("า", MaxTextLength+500)
	got := Text([]byte(long))
	assert.Equal(t, MaxTextLength, len([]rune(got)))
}
