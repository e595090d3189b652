// Package main is the entry point for mailctl, a command line client that
// builds messages and hands them to a delivery provider.
package main

func main() {
	Execute()
}
