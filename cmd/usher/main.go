package main

import (
	"os"

	"github.com/iliyamo/childcare-checkin/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
