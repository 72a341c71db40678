package main

import "github.com/forPelevin/scribe/internal/cli"

func main() {
	cli.Main()
}
