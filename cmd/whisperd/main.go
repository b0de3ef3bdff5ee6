package main

import (
	"os"

	"whisper.bot/cmd/whisperd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
