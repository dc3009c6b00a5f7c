package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Exit codes of the run command. Other commands exit 0 or 1.
const (
	exitOK            = 0
	exitAborted       = 1
	exitTestsFailed   = 2
	exitPersistFailed = 3
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "qualitywatch error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(args []string) error {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.Execute()
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitAborted
}
