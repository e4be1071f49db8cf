package dbname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Accepts(t *testing.T) {
	for _, name := range []string{"galaxy.db", "a.db", "my-database_v2.sqlite", "t.db"} {
		assert.NoError(t, Validate(name), "expected %q to be accepted", name)
	}
}

func TestValidate_RejectsEmpty(t *testing.T) {
	assert.Error(t, Validate(""))
}

func TestValidate_RejectsSeparators(t *testing.T) {
	for _, name := range []string{"a/b.db", "a\\b.db", "/etc/passwd", "dir/../x.db"} {
		assert.Error(t, Validate(name), "expected %q to be rejected", name)
	}
}

func TestValidate_RejectsDotComponents(t *testing.T) {
	assert.Error(t, Validate("."))
	assert.Error(t, Validate(".."))
}

func TestValidate_RejectsTilde(t *testing.T) {
	assert.Error(t, Validate("~"))
	assert.Error(t, Validate("~root.db"))
}

func TestValidate_RejectsControlCharacters(t *testing.T) {
	assert.Error(t, Validate("a\x01b.db"))
	assert.Error(t, Validate("a\x7Fb.db"))
}
