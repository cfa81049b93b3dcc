package main

import (
	"os"

	"mochimo-mam/cmd/cli"
)

func main() {
	cli.RegisterRoutes(cli.RootCmd)
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
