// Package main is the entry point for the preorder CLI.
package main

import "github.com/preorder/preorder-cli/internal/cli"

func main() {
	cli.Execute()
}
