package main

import "growzzy/cmd/cli"

func main() {
	cli.Execute()
}
