//go:build unix

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// Restart replaces the running process with a fresh instance of the same binary.
// It only returns on failure.
func Restart() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return unix.Exec(exe, os.Args, os.Environ())
}
