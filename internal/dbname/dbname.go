// Package dbname validates the client-supplied database name carried on
// every non-Shutdown wire request before it is ever joined to the daemon's
// base directory.
package dbname

import (
	"fmt"
	"strings"
)

// Validate rejects anything that is not a bare file name confined to the
// daemon's base directory: a path separator, a ".." component, a leading
// "~", or a control character. This is stricter than sanitizing a
// filesystem path into something safe — Validate only ever accepts or
// rejects, so a client that sends a hostile name gets an error back
// instead of having it silently resolved to some other file.
func Validate(name string) error {
	if name == "" {
		return fmt.Errorf("dbname: database name is empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("dbname: %q contains a path separator", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("dbname: %q is a path traversal component", name)
	}
	if strings.HasPrefix(name, "~") {
		return fmt.Errorf("dbname: %q may not start with '~'", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7F {
			return fmt.Errorf("dbname: %q contains a control character", name)
		}
	}
	return nil
}
