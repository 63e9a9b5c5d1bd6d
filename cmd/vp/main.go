package main

import (
	"os"

	"github.com/probelab/visprobe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
