package main

import (
	"raremblems/cmd/raremblems/commands"
)

func main() {
	commands.Execute()
}
