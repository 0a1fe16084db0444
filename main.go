// The main package for the signal-tally executable.
package main

import (
	"github.com/JakeFAU/signal-tally/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
