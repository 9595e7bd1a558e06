package main

import (
	"os"

	"github.com/adalundhe/rendezvous/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
