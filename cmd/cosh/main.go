// Package main is the entry point of the cosh shell.
package main

import "os"

// main runs the root command and exits with the status of the last line.
func main() {
	os.Exit(Execute())
}
