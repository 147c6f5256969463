// The main package for the batchwatch executable.
package main

import (
	"github.com/JakeFAU/batchwatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
