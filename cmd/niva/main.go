package main

import (
	"context"
	"os"

	"github.com/gerrxt07/niva/internal/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// fang prints the error.
	if err := cmd.Execute(context.Background(), version, commit, date); err != nil {
		os.Exit(1)
	}
}
