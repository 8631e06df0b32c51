package main

import (
	"os"

	"fidchannels/cmd/fidchannels/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}
