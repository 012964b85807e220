package theme

import (
	"fmt"
)

// Banner returns a stormbird-at-sea themed banner.
func Banner() string {
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	art := "" +
		"  ~~~   " + magenta + "PETREL" + reset + "   ~~~\n" +
		cyan + "      __   ___   __\n" + reset +
		cyan + "  ___/  \\_/   \\_/  \\___\n" + reset +
		cyan + " ~~~~ ~~~ ~~~~~ ~~~ ~~~~\n" + reset +
		yellow + "   ──────────────────────\n" + reset +
		"   an autonomous stormbird for X ~\n"

	waves := magenta + "     ~  ~~   ~   ~~  ~\n" + reset
	return art + waves
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
