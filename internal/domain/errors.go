package domain

import "errors"

var (
	ErrInvalidFileName = errors.New("invalid file name")
	ErrReboot          = errors.New("reboot requested")
	ErrHandshake       = errors.New("handshake failed")
)
