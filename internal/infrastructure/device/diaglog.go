package device

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const diagTimeFormat = "2006-01-02 15:04:05"

// DiagLog is the on-device diagnostic log. While enabled it appends one
// timestamped line per entry to its file. The file is never rotated.
//
// DiagLog is also a log.Handler, so it can be installed next to the console
// handler to capture everything the service logs.
type DiagLog struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	enabled bool
}

func NewDiagLog(path string, enabled bool) *DiagLog {
	return &DiagLog{path: path, enabled: enabled, now: time.Now}
}

func (d *DiagLog) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

func (d *DiagLog) SetEnabled(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = on
}

func (d *DiagLog) Write(line string) error {
	return d.write(d.now(), line)
}

func (d *DiagLog) write(t time.Time, line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return nil
	}
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "[%s] %s\n", t.Format(diagTimeFormat), line)
	return err
}

// ReadAll returns the whole log. A log that was never written is empty.
func (d *DiagLog) ReadAll() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

func (d *DiagLog) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return os.WriteFile(d.path, nil, 0644)
}

// Log implements log.Handler.
func (d *DiagLog) Log(r *log.Record) error {
	var b strings.Builder
	b.WriteString(r.Msg)
	for i := 0; i+1 < len(r.Ctx); i += 2 {
		fmt.Fprintf(&b, " %v=%v", r.Ctx[i], r.Ctx[i+1])
	}
	return d.write(r.Time, b.String())
}
