// Sagredo - command-line Lean proof search
package main

import "github.com/ashureev/sagredo/internal/cli"

func main() {
	cli.Execute()
}
