package main

import (
	"fmt"
	"os"

	"github.com/mirelark/storyloom/cmd/storyloom/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
