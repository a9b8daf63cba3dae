//go:build linux

package main

import (
	"log/slog"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// suppressEcho turns off stdin echo while sampling so a ^C does not land in the
// middle of the final report.
func suppressEcho(fd int, logger *slog.Logger) func() {
	if !term.IsTerminal(fd) {
		return func() {}
	}
	termState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		logger.Debug("unable to read terminal state", "error", err)
		return func() {}
	}

	updated := *termState
	updated.Lflag &^= unix.ECHO
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &updated); err != nil {
		logger.Debug("unable to suppress stdin echo", "error", err)
		return func() {}
	}

	return func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, termState)
	}
}
