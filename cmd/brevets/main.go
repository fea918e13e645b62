package main

import (
	"os"

	"github.com/psantana5/brevets/cmd/brevets/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
