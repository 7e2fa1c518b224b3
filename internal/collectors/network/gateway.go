package network

import (
	"context"
	"net"

	"github.com/jackpal/gateway"
	gopsnet "github.com/shirou/gopsutil/v4/net"
)

// Lister discovers interfaces on the host.
type Lister interface {
	Interfaces(ctx context.Context) ([]gopsnet.InterfaceStat, error)
	DefaultInterface(ctx context.Context) (string, error)
}

type systemLister struct{}

func (systemLister) Interfaces(ctx context.Context) ([]gopsnet.InterfaceStat, error) {
	return gopsnet.InterfacesWithContext(ctx)
}

// DefaultInterface returns the interface that owns the default route.
func (l systemLister) DefaultInterface(ctx context.Context) (string, error) {
	gwIP, err := gateway.DiscoverGateway()
	if err != nil {
		return "", err
	}

	interfaces, err := l.Interfaces(ctx)
	if err != nil {
		return "", err
	}
	return interfaceForGateway(gwIP, interfaces), nil
}

// interfaceForGateway finds the interface whose subnet holds gwIP, falling
// back to the first physical interface that is up.
func interfaceForGateway(gwIP net.IP, interfaces []gopsnet.InterfaceStat) string {
	for _, iface := range interfaces {
		for _, addr := range iface.Addrs {
			ip, ipnet, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				continue
			}
			if ipnet.Contains(gwIP) || ip.Equal(gwIP) {
				return iface.Name
			}
		}
	}

	for _, iface := range interfaces {
		if shouldMonitorInterface(iface) {
			return iface.Name
		}
	}
	return ""
}
