package main

import (
	"os"

	"github.com/Nontawatt/OpenMediaTrust/cmd/omt/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
