package main

import (
	"github.com/zxsharp/active-app-worker/cmd/active-app-worker/commands"
)

func main() {
	commands.Execute()
}
