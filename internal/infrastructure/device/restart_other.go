//go:build !unix

package device

import "errors"

func Restart() error {
	return errors.New("in-place restart is not supported on this platform")
}
