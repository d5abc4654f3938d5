package main

import (
	"os"

	"github.com/flowrun-dev/flowrun/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
