package main

import "presyo-watcher/internal/cli"

func main() {
	cli.Execute()
}
