// Package configtest provides scoped flag overrides for tests
package configtest

import (
	"testing"

	"github.com/vkngwrapper/gfxcore/config"
)

// Override returns config.Default with modify applied. Flags are values, so the override is scoped
// to whatever the test passes the result to and nothing needs restoring afterward.
func Override(t testing.TB, modify func(flags *config.Flags)) config.Flags {
	t.Helper()
	return config.Default().With(modify)
}
