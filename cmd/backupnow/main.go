package main

import (
	"os"

	"backupnow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
