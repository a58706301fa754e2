package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"devctl/internal/domain"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLEDPulse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brightness")
	led := NewLED(path)

	var slept []time.Duration
	led.sleep = func(d time.Duration) { slept = append(slept, d) }

	led.Set(true)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
	assert.True(t, led.On())

	led.Pulse(3, 200*time.Millisecond)
	assert.Len(t, slept, 6)
	assert.True(t, led.On(), "state before the pulse is restored")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	led.Set(false)
	led.Pulse(1, 0)
	assert.False(t, led.On())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))
}

func TestDiagLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	d := NewDiagLog(path, true)
	d.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local) }

	content, err := d.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, content)

	require.NoError(t, d.Write("first"))
	d.SetEnabled(false)
	require.NoError(t, d.Write("dropped"))
	d.SetEnabled(true)
	require.NoError(t, d.Write("second"))

	content, err = d.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "[2024-05-01 12:30:00] first\n[2024-05-01 12:30:00] second\n", content)

	require.NoError(t, d.Clear())
	content, err = d.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestDiagLogHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	d := NewDiagLog(path, true)

	logger := log.New()
	logger.SetHandler(d)
	logger.Info("Client connected", "addr", "127.0.0.1:4000")

	content, err := d.ReadAll()
	require.NoError(t, err)
	assert.Contains(t, content, "] Client connected addr=127.0.0.1:4000\n")
	assert.True(t, strings.HasPrefix(content, "["))
}

func TestGeoClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"203.0.113.7","city":"Hangzhou","region":"Zhejiang","country":"CN","loc":"30.29,120.16","timezone":"Asia/Shanghai"}`))
	})
	mux.HandleFunc("/Hangzhou", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "j1", r.URL.Query().Get("format"))
		w.Write([]byte(`{"current_condition":[{"temp_C":"21","FeelsLikeC":"20","humidity":"60","pressure":"1012","visibility":"10","uvIndex":"4","weatherDesc":[{"value":"Sunny"}]}],"weather":[{}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGeoClient(srv.URL+"/json", srv.URL, time.Second)
	loc, err := g.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hangzhou", loc.City)
	assert.InDelta(t, 30.29, loc.Lat, 1e-9)
	assert.InDelta(t, 120.16, loc.Lon, 1e-9)

	rep, err := g.Weather(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, "21", rep.Temperature)
	assert.Equal(t, "Sunny", rep.Description)
	assert.Equal(t, "CN", rep.Location.Country)
}

func TestGeoClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/json" {
			w.Write([]byte(`{"bogon":true}`))
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGeoClient(srv.URL+"/json", srv.URL, time.Second)
	_, err := g.Locate(context.Background())
	assert.ErrorIs(t, err, errNoLocation)

	_, err = g.Weather(context.Background(), &domain.Location{City: "Nowhere"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error getting weather info")
}

func TestNetworkMonitorTables(t *testing.T) {
	dir := t.TempDir()
	route := "Iface\tDestination\tGateway \tFlags\tRefCnt\tUse\tMetric\tMask\n" +
		"wlan0\t00000000\t0101A8C0\t0003\t0\t0\t600\t00000000\n" +
		"wlan0\t0001A8C0\t00000000\t0001\t0\t0\t600\t00FFFFFF\n"
	resolv := "# generated\nsearch lan\nnameserver 192.168.1.1\nnameserver 8.8.8.8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "route"), []byte(route), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resolv.conf"), []byte(resolv), 0644))

	n := NewNetworkMonitor("wlan0")
	n.routeFile = filepath.Join(dir, "route")
	n.resolvFile = filepath.Join(dir, "resolv.conf")

	assert.Equal(t, "192.168.1.1", n.gateway("wlan0"))
	assert.Equal(t, "", n.gateway("eth0"))
	assert.Equal(t, "192.168.1.1", n.nameserver())
}

func TestNetworkMonitorMissingInterface(t *testing.T) {
	n := NewNetworkMonitor("does-not-exist0")
	assert.False(t, n.Status().Connected)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.False(t, n.Connect(ctx))
}
