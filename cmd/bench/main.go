package main

import (
	"fmt"
	"os"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func benchCommand() *commander.Command {
	return &commander.Command{
		UsageLine: os.Args[0] + " <command> [options]",
		Short:     "image classification benchmark harness",
		Subcommands: []*commander.Command{
			runCmd(),
			classifyCmd(),
			modelsCmd(),
		},
		Flag: *flag.NewFlagSet("bench", flag.ExitOnError),
	}
}

func main() {
	if err := benchCommand().Dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "**err**: %v\n", err)
		os.Exit(1)
	}
}
