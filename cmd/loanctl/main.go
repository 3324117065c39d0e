// Package main is the entry point for the loanctl binary.
package main

import (
	"os"

	"loan-pipeline/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
