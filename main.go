package main

import (
	"os"

	"github.com/jonesrussell/analyst/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
