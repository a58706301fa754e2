package device

import (
	"bufio"
	"context"
	"devctl/internal/domain"
	"encoding/binary"
	"encoding/hex"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p/netutil"
)

// NetworkMonitor reports the state of the device's uplink interface.
type NetworkMonitor struct {
	iface      string
	routeFile  string
	resolvFile string
	poll       time.Duration
}

// NewNetworkMonitor watches the named interface, or the first interface that is up
// and has an IPv4 address if iface is empty.
func NewNetworkMonitor(iface string) *NetworkMonitor {
	return &NetworkMonitor{
		iface:      iface,
		routeFile:  "/proc/net/route",
		resolvFile: "/etc/resolv.conf",
		poll:       time.Second,
	}
}

// Connect waits until the uplink has an address or ctx expires.
func (n *NetworkMonitor) Connect(ctx context.Context) bool {
	ticker := time.NewTicker(n.poll)
	defer ticker.Stop()

	for {
		if st := n.Status(); st.Connected {
			log.Info("Network connected", "ip", st.IP)
			return true
		}
		select {
		case <-ctx.Done():
			log.Warn("Network connect timed out")
			return false
		case <-ticker.C:
		}
	}
}

func (n *NetworkMonitor) Status() domain.NetStatus {
	ifname, ipnet := n.uplink()
	if ipnet == nil {
		return domain.NetStatus{}
	}
	return domain.NetStatus{
		Connected: true,
		IP:        ipnet.IP.String(),
		Mask:      net.IP(ipnet.Mask).String(),
		Gateway:   n.gateway(ifname),
		DNS:       n.nameserver(),
	}
}

func (n *NetworkMonitor) uplink() (string, *net.IPNet) {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Debug("Can't list interfaces", "err", err)
		return "", nil
	}

	var (
		fallbackName string
		fallback     *net.IPNet
	)
	for _, iface := range ifaces {
		if n.iface != "" && iface.Name != n.iface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			v4 := &net.IPNet{IP: ipnet.IP.To4(), Mask: ipnet.Mask}
			if len(v4.Mask) == net.IPv6len {
				v4.Mask = v4.Mask[12:]
			}
			if netutil.IsLAN(v4.IP) {
				return iface.Name, v4
			}
			if fallback == nil {
				fallbackName, fallback = iface.Name, v4
			}
		}
	}
	return fallbackName, fallback
}

// gateway reads the default route of ifname from the kernel routing table.
func (n *NetworkMonitor) gateway(ifname string) string {
	f, err := os.Open(n.routeFile)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Scan() // header
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || fields[0] != ifname || fields[1] != "00000000" {
			continue
		}
		raw, err := hex.DecodeString(fields[2])
		if err != nil || len(raw) != 4 {
			continue
		}
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, binary.LittleEndian.Uint32(raw))
		return ip.String()
	}
	return ""
}

func (n *NetworkMonitor) nameserver() string {
	f, err := os.Open(n.resolvFile)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "nameserver" {
			return fields[1]
		}
	}
	return ""
}
