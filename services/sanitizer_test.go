package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeCleanInput(t *testing.T) {
	s := NewSanitizer(4000)

	result := s.Sanitize("Olá, quero saber sobre o produto")

	assert.False(t, result.Blocked)
	assert.False(t, result.WasModified)
	assert.Equal(t, "Olá, quero saber sobre o produto", result.Clean)
}

func TestSanitizeStripsControlChars(t *testing.T) {
	s := NewSanitizer(4000)

	result := s.Sanitize("hello\x00world\x07!")

	assert.False(t, result.Blocked)
	assert.True(t, result.WasModified)
	assert.Equal(t, "helloworld!", result.Clean)
}

func TestSanitizeKeepsNewlinesAndTabs(t *testing.T) {
	s := NewSanitizer(4000)

	result := s.Sanitize("linha um\nlinha dois\tfim")

	assert.Equal(t, "linha um\nlinha dois\tfim", result.Clean)
}

func TestSanitizeCollapsesWhitespace(t *testing.T) {
	s := NewSanitizer(4000)

	result := s.Sanitize("muito     espaço")

	assert.True(t, result.WasModified)
	assert.Equal(t, "muito espaço", result.Clean)
}

func TestSanitizeTruncatesLongInput(t *testing.T) {
	s := NewSanitizer(100)

	result := s.Sanitize(strings.Repeat("a", 500))

	assert.True(t, result.WasModified)
	assert.Len(t, result.Clean, 100)
}

func TestSanitizeTruncationKeepsValidUTF8(t *testing.T) {
	s := NewSanitizer(10)

	// "ç" is 2 bytes; a naive byte cut would split it
	result := s.Sanitize(strings.Repeat("ç", 20))

	assert.True(t, result.WasModified)
	assert.True(t, len(result.Clean) <= 10)
	for _, r := range result.Clean {
		assert.Equal(t, 'ç', r)
	}
}

func TestSanitizeInvalidUTF8(t *testing.T) {
	s := NewSanitizer(4000)

	result := s.Sanitize("ok\xff\xfetext")

	assert.False(t, result.Blocked)
	assert.True(t, result.WasModified)
	assert.Equal(t, "oktext", result.Clean)
}

func TestSanitizeBlocksEmptyAfterCleaning(t *testing.T) {
	s := NewSanitizer(4000)

	result := s.Sanitize("\x00\x01   \x02")

	assert.True(t, result.Blocked)
	assert.NotEmpty(t, result.BlockReason)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+5511999990000", NormalizePhone("+55 (11) 99999-0000"))
	assert.Equal(t, "5511999990000", NormalizePhone("55 11 99999 0000"))
	assert.Equal(t, "123456", NormalizePhone("1a2b3c4d5e6"))
	assert.Equal(t, "", NormalizePhone(""))
	// A + anywhere but the first position is dropped
	assert.Equal(t, "5511", NormalizePhone("55+11"))
}
