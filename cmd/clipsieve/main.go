package main

import "github.com/clipsieve/clipsieve/internal/cli"

func main() {
	cli.Main()
}
