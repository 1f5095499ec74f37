// Package main provides the entry point for the notehunt CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/notehunt/cmd/notehunt/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
