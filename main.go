package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/giygas/cycletracker/cmd"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environment variables always win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.RootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
