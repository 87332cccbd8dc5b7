package main

import (
	"os"

	"ecodash/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.LoadEnvFile()
	app := cli.NewCLIApp(version, nil, nil)
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
