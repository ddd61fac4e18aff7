//go:build darwin

package log

import "golang.org/x/sys/unix"

// Platform-specific ioctl constant for macOS
const ioctlGetTermios = unix.TIOCGETA
