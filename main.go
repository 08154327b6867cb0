package main

import (
	"fmt"
	"os"

	"github.com/emily-news/tgcollect/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; container deployments set real environment variables.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
