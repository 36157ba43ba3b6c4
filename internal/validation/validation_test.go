package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	valid := []string{"abc", "user_name", "user-name", "User42", strings.Repeat("a", 30)}
	for _, u := range valid {
		assert.NoError(t, ValidateUsername(u), u)
	}

	invalid := []string{
		"",
		"ab",
		strings.Repeat("a", 31),
		"has space",
		"has@sign",
		"_leading",
		"trailing_",
		"-leading",
		"trailing-",
		"emoji🙂",
	}
	for _, u := range invalid {
		assert.Error(t, ValidateUsername(u), u)
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last+tag@sub.example.com", "x_y%z@example.org"}
	for _, e := range valid {
		assert.NoError(t, ValidateEmail(e), e)
	}

	invalid := []string{
		"",
		"plain",
		"no-at.example.com",
		"@example.com",
		"user@",
		"user@nodot",
		"user@example.com" + strings.Repeat("m", 250),
	}
	for _, e := range invalid {
		assert.Error(t, ValidateEmail(e), e)
	}
}

func TestValidatePassword(t *testing.T) {
	valid := []string{"abcdefg1", "longer passw0rd with spaces", strings.Repeat("a1", 64)}
	for _, p := range valid {
		assert.NoError(t, ValidatePassword(p), p)
	}

	invalid := []string{
		"",
		"short1",
		strings.Repeat("a1", 65),
		"lettersonly",
		"12345678",
	}
	for _, p := range invalid {
		assert.Error(t, ValidatePassword(p), p)
	}
}
