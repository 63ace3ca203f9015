package main

import (
	"os"

	"github.com/rustyeddy/gradebot/cmd/gradebot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
