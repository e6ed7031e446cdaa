package main

import "surgrag/internal/cli"

func main() {
	cli.Execute()
}
