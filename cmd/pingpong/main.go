package main

import "pingpong/cmd/pingpong/command"

func main() {
	command.Execute()
}
