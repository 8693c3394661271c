// The main package for the questledger executable.
package main

import (
	"github.com/JakeFAU/questledger/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
