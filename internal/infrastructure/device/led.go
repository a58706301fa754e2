package device

import (
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// LED drives a status LED through its sysfs brightness file. With an empty path
// only the state is tracked, which is what hosts without a LED get.
type LED struct {
	path  string
	sleep func(time.Duration)

	mu sync.Mutex
	on bool
}

func NewLED(path string) *LED {
	return &LED{path: path, sleep: time.Sleep}
}

func (l *LED) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.on = on
	if l.path == "" {
		return
	}
	value := []byte("0")
	if on {
		value = []byte("1")
	}
	if err := os.WriteFile(l.path, value, 0644); err != nil {
		log.Debug("LED write failed", "path", l.path, "err", err)
	}
}

func (l *LED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Pulse blinks the LED and then restores the state it had before. It blocks
// for 2*times*interval.
func (l *LED) Pulse(times int, interval time.Duration) {
	log.Trace("LED pulse", "times", times, "interval", interval)
	prev := l.On()
	for i := 0; i < times; i++ {
		l.Set(true)
		l.sleep(interval)
		l.Set(false)
		l.sleep(interval)
	}
	l.Set(prev)
}
