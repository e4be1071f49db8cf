package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	cyan  = "\033[36m"
	dim   = "\033[2m"
)

// logoLines is ASCII art for the daemon's single mode; there is no
// hub/worker/standalone mode split here, unlike the multi-process system
// this logging package was lifted from.
var logoLines = [6]string{
	`             _       _ _ _       `,
	`  ___ ___ _ _|_|___ _| |_| |_ ___`,
	` |_ -| -_| '_| | .'| | | |  _| -_|`,
	` |___|___|_| |_|__,|_|_|_|_| |___|`,
	`                                   `,
	`       write-serializing daemon   `,
}

// PrintBanner prints the daemon's ASCII art logo followed by version and
// socket path. Colors are used only when stderr is a TTY.
func PrintBanner(ver, socketPath string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	for _, line := range logoLines {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", bold+cyan, line, reset)
		} else {
			fmt.Fprintln(os.Stderr, line)
		}
	}

	if color {
		fmt.Fprintf(os.Stderr, "\n  %sversion%s %s   %ssocket%s %s\n\n",
			dim, reset, ver, dim, reset, socketPath)
	} else {
		fmt.Fprintf(os.Stderr, "\n  version %s   socket %s\n\n", ver, socketPath)
	}
}
