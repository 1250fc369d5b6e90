package main

import "pubsearch/internal/cli"

func main() {
	cli.Execute()
}
