package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/voluzi/pagepulse/cmd/pagepulse/cmd"
)

func main() {
	cmd.Execute()
}
