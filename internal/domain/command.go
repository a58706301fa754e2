package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// ArgMode describes how a command consumes the text following its name.
type ArgMode int

const (
	NoArgs ArgMode = iota
	OptionalArg
	RequiredArg
)

// Command is one entry of the dispatcher's command table.
//
// Execute reports whether the session should keep reading commands. The returned
// error is reserved for failures of the connection itself; everything else is
// answered to the client as a response string.
type Command interface {
	Name() string
	Args() ArgMode
	Usage() string
	Execute(ctx context.Context, sess *Session, arg string) (bool, error)
}

type CommandHandler interface {
	HandleCommand(ctx context.Context, sess *Session, frame []byte) (bool, error)
	RegisterCommand(command Command)
}

// Session is the state of one established connection.
type Session struct {
	ID         string
	RemoteAddr string
	Stream     Stream
	Log        log.Logger
}

// Reply sends a single textual response.
func (s *Session) Reply(text string) error {
	return s.Stream.Send([]byte(text))
}

type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TransferState records the progress of the single upload that may be resumed.
// Checksum is persisted for compatibility and is always zero.
type TransferState struct {
	Filename  string `json:"filename"`
	Position  int64  `json:"position"`
	TotalSize int64  `json:"total_size"`
	Checksum  uint32 `json:"file_hash"`
}
