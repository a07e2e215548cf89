// The main package for the distributor-tracker executable.
package main

import (
	"github.com/uitrack/distributor-tracker/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
