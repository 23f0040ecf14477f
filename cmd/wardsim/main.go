// wardsim is the command-line interface to the address-translation and MPU-refill simulator.
package main

import (
	"context"
	"os"

	"github.com/wardkernel/ward/internal/cli"
	"github.com/wardkernel/ward/internal/cli/cmd"
)

var commands = []cli.Command{
	cmd.Boot(),
}

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
