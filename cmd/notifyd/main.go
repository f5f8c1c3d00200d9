package main

import "github.com/dmitrymomot/notifykit/internal/cli"

func main() {
	cli.Execute()
}
