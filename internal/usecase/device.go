package usecase

import (
	"context"
	"devctl/internal/domain"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// Device bundles the stores and collaborators the command handlers act on. The
// current credentials are shared by all sessions and survive across connections.
type Device struct {
	Files     domain.FileManager
	Creds     domain.CredentialStore
	Transfers domain.TransferStore
	Net       domain.Connectivity
	LED       domain.Feedback
	Health    domain.HealthSampler
	Geo       domain.GeoClient
	Diag      domain.DiagLog

	Now           func() time.Time
	PulseInterval time.Duration

	mu    sync.Mutex
	creds domain.Credentials
}

func (d *Device) Credentials() domain.Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creds
}

func (d *Device) SetCredentials(c domain.Credentials) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = c
}

func (d *Device) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Device) pulse() {
	if d.LED != nil {
		d.LED.Pulse(1, d.PulseInterval)
	}
}

// NewDeviceHandler builds the dispatcher with the full device command table.
func NewDeviceHandler(d *Device) *CommandHandler {
	h := NewCommandHandler()
	h.OnInvalid(func(*domain.Session) { d.pulse() })

	for _, c := range []*command{
		{name: "hello", usage: "hello", summary: "test the connection", run: d.hello},
		{name: "exit", usage: "exit", summary: "close the connection", aliases: []string{"Exit"}, run: d.exit},
		{name: "help", usage: "help", summary: "show this help", run: func(_ context.Context, sess *domain.Session, _ string) (bool, error) {
			d.pulse()
			return true, sess.Reply(h.Help())
		}},
		{name: "ledon", usage: "ledon", summary: "turn the LED on", run: d.ledOn},
		{name: "ledoff", usage: "ledoff", summary: "turn the LED off", run: d.ledOff},
		{name: "blink", args: domain.OptionalArg, usage: "blink [times] [interval]", summary: "blink the LED", run: d.blink},
		{name: "wifistatus", usage: "wifistatus", summary: "show the network status", run: d.netStatus},
		{name: "sysinfo", usage: "sysinfo", summary: "show system information", run: d.sysInfo},
		{name: "reboot", usage: "reboot", summary: "restart the service", run: d.reboot},
		{name: "changepass", args: domain.OptionalArg, usage: "changepass <password>", summary: "change the password", run: d.changePass},
		{name: "user1024", usage: "user1024", summary: "show the user name", run: d.user},
		{name: "passwd1024", usage: "passwd1024", summary: "show the password", run: d.password},
		{name: "time", usage: "time", summary: "show the current time", run: d.currentTime},
		{name: "weather", usage: "weather", summary: "show the weather at the device location", run: d.weather},
		{name: "location", usage: "location", summary: "show the device location", run: d.location},
		{name: "ls", usage: "ls", summary: "list files", run: d.list},
		{name: "cat", args: domain.RequiredArg, usage: "cat <name>", summary: "show a file", run: d.cat},
		{name: "write", args: domain.RequiredArg, usage: "write <name> <content>", summary: "write a file", run: d.write},
		{name: "del", args: domain.RequiredArg, usage: "del <name>", summary: "delete a file", run: d.del},
		{name: "upload", args: domain.RequiredArg, usage: "upload <name>", summary: "upload a file", run: d.upload},
		{name: "get", args: domain.RequiredArg, usage: "get <name>", summary: "download a file", run: d.get},
		{name: "resume", args: domain.RequiredArg, usage: "resume <name>", summary: "query an interrupted upload", run: d.resume},
		{name: "debug on", usage: "debug on", summary: "enable the debug log", run: d.debugOn},
		{name: "debug off", usage: "debug off", summary: "disable the debug log", run: d.debugOff},
		{name: "debug status", usage: "debug status", summary: "show the debug mode", run: d.debugStatus},
		{name: "debug log", usage: "debug log", summary: "show the debug log", run: d.debugLog},
		{name: "debug clear", usage: "debug clear", summary: "clear the debug log", run: d.debugClear},
	} {
		h.RegisterCommand(c)
	}
	return h
}

func (d *Device) hello(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	d.pulse()
	return true, sess.Reply("hello from device")
}

func (d *Device) exit(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	d.pulse()
	return false, sess.Reply("closing connection, goodbye")
}

func (d *Device) ledOn(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	d.LED.Set(true)
	return true, sess.Reply("LED on")
}

func (d *Device) ledOff(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	d.LED.Set(false)
	return true, sess.Reply("LED off")
}

func (d *Device) blink(_ context.Context, sess *domain.Session, arg string) (bool, error) {
	times, interval, err := parseBlink(arg)
	if err != nil {
		sess.Log.Debug("Bad blink arguments", "arg", arg, "err", err)
		return true, sess.Reply("invalid blink arguments, usage: blink <times> <interval seconds>")
	}
	d.LED.Pulse(times, time.Duration(interval*float64(time.Second)))
	return true, sess.Reply(fmt.Sprintf("LED blinked %d times, interval %ss", times, strconv.FormatFloat(interval, 'f', -1, 64)))
}

// parseBlink reads "[times] [interval]", defaulting to one blink every half second.
func parseBlink(arg string) (int, float64, error) {
	times, interval := 1, 0.5
	params := strings.Fields(arg)
	if len(params) > 2 {
		return 0, 0, fmt.Errorf("too many arguments")
	}
	if len(params) > 0 {
		n, err := strconv.Atoi(params[0])
		if err != nil {
			return 0, 0, err
		}
		times = n
	}
	if len(params) > 1 {
		f, err := strconv.ParseFloat(params[1], 64)
		if err != nil {
			return 0, 0, err
		}
		interval = f
	}
	if times < 0 || interval < 0 {
		return 0, 0, fmt.Errorf("negative argument")
	}
	return times, interval, nil
}

func (d *Device) netStatus(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	st := d.Net.Status()
	if !st.Connected {
		sess.Log.Debug("Network status", "connected", false)
		return true, sess.Reply("network not connected")
	}
	sess.Log.Debug("Network status", "connected", true, "ip", st.IP)
	return true, sess.Reply(fmt.Sprintf("network connected\nIP address: %s\nnetmask: %s\ngateway: %s\nDNS: %s",
		st.IP, st.Mask, st.Gateway, st.DNS))
}

func (d *Device) sysInfo(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	snap := d.Health.Snapshot()
	sess.Log.Debug("System info", "mhz", snap.CPUFreqMHz, "free", snap.MemFree)

	temp, sensor := "unavailable", "unavailable"
	if snap.Temperature != nil {
		temp = strconv.FormatFloat(*snap.Temperature, 'f', 1, 64) + " °C"
	}
	if snap.Sensor != nil {
		sensor = strconv.FormatFloat(*snap.Sensor, 'f', -1, 64)
	}
	return true, sess.Reply(fmt.Sprintf("system info:\nCPU frequency: %s MHz\nfree memory: %d bytes\nallocated memory: %d bytes\ntemperature: %s\nsensor: %s",
		strconv.FormatFloat(snap.CPUFreqMHz, 'f', -1, 64), snap.MemFree, snap.MemAlloc, temp, sensor))
}

func (d *Device) reboot(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	sess.Log.Warn("Reboot requested")
	if err := sess.Reply("rebooting"); err != nil {
		sess.Log.Debug("Reboot reply not delivered", "err", err)
	}
	return false, domain.ErrReboot
}

func (d *Device) changePass(_ context.Context, sess *domain.Session, arg string) (bool, error) {
	password := strings.TrimSpace(arg)
	if password == "" {
		return true, sess.Reply("password cannot be empty")
	}
	creds, err := d.Creds.Update(d.Credentials().Username, password)
	if err != nil {
		sess.Log.Warn("Failed to update password", "err", err)
		return true, sess.Reply("password update failed")
	}
	d.SetCredentials(creds)
	sess.Log.Info("Password updated", "user", creds.Username)
	return true, sess.Reply("password updated")
}

func (d *Device) user(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	sess.Log.Debug("User name requested")
	return true, sess.Reply(d.Credentials().Username)
}

func (d *Device) password(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	sess.Log.Debug("Password requested")
	return true, sess.Reply(d.Credentials().Password)
}

func (d *Device) currentTime(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	return true, sess.Reply("current time: " + d.now().Format(timeFormat))
}

func (d *Device) location(ctx context.Context, sess *domain.Session, _ string) (bool, error) {
	loc, err := d.Geo.Locate(ctx)
	if err != nil {
		return true, sess.Reply(err.Error())
	}
	return true, sess.Reply(fmt.Sprintf("country: %s\nregion: %s\ncity: %s\ncoordinates: %g, %g\ntimezone: %s\nIP address: %s",
		loc.Country, loc.Region, loc.City, loc.Lat, loc.Lon, loc.Timezone, loc.IP))
}

func (d *Device) weather(ctx context.Context, sess *domain.Session, _ string) (bool, error) {
	loc, err := d.Geo.Locate(ctx)
	if err != nil {
		return true, sess.Reply(err.Error())
	}
	w, err := d.Geo.Weather(ctx, loc)
	if err != nil {
		return true, sess.Reply(err.Error())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "location: %s, %s, %s\n", loc.City, loc.Region, loc.Country)
	fmt.Fprintf(&b, "coordinates: %g, %g\n", loc.Lat, loc.Lon)
	fmt.Fprintf(&b, "timezone: %s\n", loc.Timezone)
	fmt.Fprintf(&b, "temperature: %s°C\n", w.Temperature)
	fmt.Fprintf(&b, "feels like: %s°C\n", w.FeelsLike)
	fmt.Fprintf(&b, "weather: %s\n", w.Description)
	fmt.Fprintf(&b, "humidity: %s%%\n", w.Humidity)
	fmt.Fprintf(&b, "pressure: %s hPa\n", w.Pressure)
	fmt.Fprintf(&b, "visibility: %s km\n", w.Visibility)
	fmt.Fprintf(&b, "UV index: %s", w.UVIndex)
	return true, sess.Reply(b.String())
}

func (d *Device) debugOn(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	d.Diag.SetEnabled(true)
	sess.Log.Info("Debug mode enabled")
	return true, sess.Reply("debug mode on")
}

func (d *Device) debugOff(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	sess.Log.Info("Debug mode disabled")
	d.Diag.SetEnabled(false)
	return true, sess.Reply("debug mode off")
}

func (d *Device) debugStatus(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	status := "off"
	if d.Diag.Enabled() {
		status = "on"
	}
	return true, sess.Reply("debug mode: " + status)
}

func (d *Device) debugLog(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	content, err := d.Diag.ReadAll()
	if err != nil {
		return true, sess.Reply(fmt.Sprintf("read log failed: %v", err))
	}
	return sendChunked(sess, []byte(content), "log send failed")
}

func (d *Device) debugClear(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	if err := d.Diag.Clear(); err != nil {
		return true, sess.Reply(fmt.Sprintf("clear log failed: %v", err))
	}
	return true, sess.Reply("debug log cleared")
}
