package httpwasm

import (
	"bytes"
	"testing"

	"github.com/tetratelabs/wazero"
)

// Stdout/Stderr/Args/Env just forward onto wazero.ModuleConfig's own
// builder methods, so there's nothing to assert on short of instantiating a
// guest; this only checks that applying them in sequence never leaves
// WazeroOptions.ModuleConfig nil.
func TestModuleConfigOptions_chainOntoModuleConfig(t *testing.T) {
	o := &WazeroOptions{ModuleConfig: wazero.NewModuleConfig()}

	var stdout, stderr bytes.Buffer
	opts := []Option{
		Stdout(&stdout),
		Stderr(&stderr),
		Args("guest", "-v"),
		Env("FOO", "bar"),
		Env("BAZ", "qux"),
	}
	for _, opt := range opts {
		opt(o)
		if o.ModuleConfig == nil {
			t.Fatal("ModuleConfig became nil after applying an option")
		}
	}
}
