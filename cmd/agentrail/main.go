package main

import "github.com/agentrail/agentrail/internal/cli"

func main() {
	cli.Execute()
}
