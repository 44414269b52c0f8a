package main

import (
	"os"

	"github.com/dsa-judge/dsactl/cmd/dsactl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
