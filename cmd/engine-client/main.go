package main

import (
	"os"

	"github.com/moolen/engine-client/cmd/engine-client/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
