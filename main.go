// The main package for the gamejobs executable.
package main

import (
	// Asia/Seoul must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/JakeFAU/gamejobs-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
