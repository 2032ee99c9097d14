package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	// globals used to patch over calls to os.Exit() during test

	logFatalln           = log.Fatalln
	logFatalf            = log.Fatalf
	osExit               = os.Exit
	fatalOut   io.Writer = os.Stderr

	// infoLogger writes the session summary and other informative messages to os.Stdout
	infoLogger = log.New(os.Stdout, "", 0)
	logStdOut  = fmt.Printf
)

func wrapFatalln(msg string, err error) {
	if err == nil {
		logFatalln(msg)
	} else {
		logFatalf("%v", fmt.Errorf(msg+": %w", err))
	}
}

// wrapFatalWithCodef reports a failed session and exits with its code
func wrapFatalWithCodef(code int, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(fatalOut, format+"\n", args...)
	osExit(code)
}
