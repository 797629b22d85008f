package main

import "github.com/ogulcanaydogan/pulse/internal/cli"

func main() {
	cli.Execute()
}
