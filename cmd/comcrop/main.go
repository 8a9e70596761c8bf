package main

import "github.com/forPelevin/comcrop/internal/cli"

func main() {
	cli.Main()
}
