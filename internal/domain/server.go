package domain

import (
	"context"
	"io"
	"net"
	"time"
)

type Server interface {
	Start(ctx context.Context, addr string) error
	Stop() error
}

type ConnectionManager interface {
	HandleConnection(ctx context.Context, conn net.Conn) error
	SetKeepAlive(conn net.Conn) error
}

// Stream is the lock-step framing used on an established connection.
type Stream interface {
	Send(p []byte) error
	Recv(max int) ([]byte, error)
	SendAck() error
	RecvAck() error
	SendChunked(payload []byte) error
	ReceiveChunks(w io.Writer, received, total int64, onChunk func(received int64)) (int64, error)
}

type FileManager interface {
	ListFiles() ([]FileInfo, error)
	ReadFile(filename string) ([]byte, error)
	WriteFile(filename string, data []byte) error
	GetFileInfo(filename string) (*FileInfo, error)
	DeleteFile(filename string) error
	OpenUpload(filename string, position int64) (io.WriteCloser, error)
}

type CredentialStore interface {
	Init() (Credentials, error)
	Update(username, password string) (Credentials, error)
}

type TransferStore interface {
	Get() (*TransferState, bool)
	Save(state TransferState) error
	Delete() error
}

type NetStatus struct {
	Connected bool
	IP        string
	Mask      string
	Gateway   string
	DNS       string
}

type Connectivity interface {
	Connect(ctx context.Context) bool
	Status() NetStatus
}

type Feedback interface {
	Pulse(times int, interval time.Duration)
	Set(on bool)
}

// HealthSnapshot holds one sample of the device health readings. Temperature and
// Sensor are nil when the hardware does not provide them.
type HealthSnapshot struct {
	CPUFreqMHz  float64
	MemFree     uint64
	MemAlloc    uint64
	Temperature *float64
	Sensor      *float64
}

type HealthSampler interface {
	Snapshot() HealthSnapshot
}

type Location struct {
	Country  string
	Region   string
	City     string
	Lat      float64
	Lon      float64
	Timezone string
	IP       string
}

type WeatherReport struct {
	Location    Location
	Temperature string
	FeelsLike   string
	Description string
	Humidity    string
	Pressure    string
	Visibility  string
	UVIndex     string
}

type GeoClient interface {
	Locate(ctx context.Context) (*Location, error)
	Weather(ctx context.Context, loc *Location) (*WeatherReport, error)
}

type DiagLog interface {
	Enabled() bool
	SetEnabled(on bool)
	Write(line string) error
	ReadAll() (string, error)
	Clear() error
}
