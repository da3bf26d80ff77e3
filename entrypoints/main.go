package main

import (
	"github.com/Laisky/capability-search/cmd"
)

func main() {
	cmd.Execute()
}
