// Package main is the entry point for ingestgate.
package main

func main() {
	Execute()
}
