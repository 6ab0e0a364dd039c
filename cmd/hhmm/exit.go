package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/kingrea/hhmmkit/internal/modelerr"
)

const (
	exitOK         = 0
	exitValidation = 1
	exitUsage      = 2
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func usageErrorf(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

// failed reports that at least one definition did not build. The details
// have already been printed.
func failed(n int) error {
	return &exitError{code: exitValidation, err: fmt.Errorf("%d model(s) failed to build", n)}
}

// exitCode maps an error to its exit code: model errors are validation
// failures, everything else is usage or I/O.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if _, ok := modelerr.CodeOf(err); ok {
		return exitValidation
	}
	return exitUsage
}

// printError writes err and any remediation hints to w.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	var me *modelerr.Error
	if errors.As(err, &me) {
		for _, s := range me.Suggestions {
			fmt.Fprintf(w, "  hint: %s\n", s)
		}
	}
}
