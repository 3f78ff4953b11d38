package main

import (
	"fmt"
	"os"

	"github.com/wardenhq/warden/cmd/warden/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
