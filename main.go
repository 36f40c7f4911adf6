package main

import (
	"os"

	"github.com/gridkey/horizon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
