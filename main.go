// The main package for the archivebot executable.
package main

import (
	"github.com/JakeFAU/youtube-archive-bot/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
