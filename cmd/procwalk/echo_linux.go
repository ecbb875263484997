package main

import "golang.org/x/sys/unix"

// disableInputEcho turns off stdin echo so the alternate-screen view stays clean.
func disableInputEcho(fd int) (func(), error) {
	termState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	updated := *termState
	updated.Lflag &^= unix.ECHO

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &updated); err != nil {
		return nil, err
	}

	return func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, termState)
	}, nil
}
