package main

import "github.com/felo/eml2doc/internal/cli"

func main() {
	cli.Execute()
}
