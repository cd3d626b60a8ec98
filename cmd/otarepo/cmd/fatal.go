// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/oneconcern/otarepo/pkg/errors"
	remotestatus "github.com/oneconcern/otarepo/pkg/remote/status"
	"github.com/oneconcern/otarepo/pkg/repository/status"
	"golang.org/x/sys/unix"
)

var (
	// globals used to patch over calls to os.Exit() during test

	logFatalln = log.Fatalln
	logFatalf  = log.Fatalf
	osExit     = os.Exit
)

func wrapFatalln(msg string, err error) {
	if err == nil {
		logFatalln(msg)
	} else {
		logFatalf("%v", fmt.Errorf(msg+": %w", err))
	}
}

func wrapFatalWithCodef(code int, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	osExit(code)
}

// fatalItemErr exits with a status code telling the kind of failure
func fatalItemErr(msg string, err error) {
	switch {
	case errors.Is(err, remotestatus.ErrNotFound):
		wrapFatalWithCodef(int(unix.ENOENT), "%s: %v", msg, err)
	case errors.Is(err, remotestatus.ErrConflict), errors.Is(err, status.ErrOutOfSync):
		wrapFatalWithCodef(int(unix.EBUSY), "%s: %v", msg, err)
	case errors.Is(err, remotestatus.ErrUnauthorized):
		wrapFatalWithCodef(int(unix.EACCES), "%s: %v", msg, err)
	case errors.Is(err, remotestatus.ErrUnavailable), errors.Is(err, status.ErrUnavailable):
		wrapFatalWithCodef(int(unix.EHOSTUNREACH), "%s: %v", msg, err)
	default:
		wrapFatalln(msg, err)
	}
}
