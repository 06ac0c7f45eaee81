package main

import "github.com/marshallshelly/pebble-permanent/cmd/pebble-permanent/commands"

func main() {
	commands.Execute()
}
