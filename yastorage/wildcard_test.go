package yastorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchReference_Works(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		pattern   string
		candidate string
		expected  bool
	}{
		{"fooers", "fooers", true},
		{"fooers", "booers", false},
		{"foo:*", "foo:1", true},
		{"foo:*", "boo:1", false},
		{"*:1", "foo:1", true},
		{"*:1", "foo:2", false},
		{"f*1*", "foo:1x", true},
		{"f*1*", "foo:0x", false},
		{"f*1*", "boo:1x", false},
		{"*", "anything", true},
		{"**", "anything", false},
		{"**", "", false},
		{"a*a", "aa", true},
		{"a*a", "a", false},
	} {
		assert.Equal(
			t,
			tc.expected,
			matchReference(tc.pattern, tc.candidate),
			"pattern %q candidate %q",
			tc.pattern,
			tc.candidate,
		)
	}
}
