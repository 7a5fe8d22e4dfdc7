package testutil

import (
	"time"

	"github.com/skosovsky/agenty"
)

// NewTestRegistry returns a Registry with long timeout and panic recovery
// enabled, suitable for tests. Tools are registered under "tools/<name>".
func NewTestRegistry(tools ...agenty.Tool) *agenty.Registry {
	reg := agenty.NewRegistry(
		agenty.WithDefaultTimeout(30*time.Second),
		agenty.WithRecoverPanics(true),
	)
	for _, t := range tools {
		_ = reg.Register("tools/"+t.Name(), t)
	}
	return reg
}
