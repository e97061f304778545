package display

import (
	"fmt"
	"os"

	"github.com/backmassage/davpress/internal/term"
)

// PrintBanner prints the ASCII art banner; magenta when colors are enabled.
func PrintBanner() {
	if term.Magenta != "" {
		fmt.Fprint(os.Stdout, term.Magenta)
	}
	fmt.Fprint(os.Stdout, ` ____                 ____
|  _ \   __ _ __   __|  _ \  _ __   ___  ___  ___
| | | | / _`+"`"+` |\ \ / /| |_) || '__| / _ \/ __|/ __|
| |_| || (_| | \ V / |  __/ | |   |  __/\__ \__ \
|____/  \__,_|  \_/  |_|    |_|    \___||___/___/
`)
	if term.Magenta != "" {
		fmt.Fprintln(os.Stdout, term.NC)
	}
}
