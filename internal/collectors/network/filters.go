package network

import (
	"strings"

	"github.com/shirou/gopsutil/v4/net"
)

// isVirtualInterface checks if an interface is created by a container or VM runtime.
func isVirtualInterface(iface net.InterfaceStat) bool {
	name := iface.Name

	// Docker and Podman
	if name == "docker0" || strings.HasPrefix(name, "br-") || strings.HasPrefix(name, "veth") || strings.HasPrefix(name, "cni-podman") {
		return true
	}

	// libvirt/KVM and Proxmox
	for _, prefix := range []string{"virbr", "vnet", "vmbr", "tap", "fwbr", "fwpr", "fwln"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	// Wireguard, tunnels, VPN
	return strings.HasPrefix(name, "wg") || strings.HasPrefix(name, "tun")
}

// shouldMonitorInterface reports whether an interface is a physical link that is up.
func shouldMonitorInterface(iface net.InterfaceStat) bool {
	up := false
	for _, flag := range iface.Flags {
		f := strings.ToLower(flag)
		if strings.Contains(f, "loopback") {
			return false
		}
		if f == "up" {
			up = true
		}
	}
	return up && !isVirtualInterface(iface)
}

func isPattern(s string) bool {
	return strings.Contains(s, "*")
}

// matchesPattern performs simple wildcard matching (* only at start and/or end).
func matchesPattern(name, pattern string) bool {
	switch {
	case pattern == "":
		return false
	case pattern == name:
		return true
	case len(pattern) > 1 && strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(name, strings.Trim(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, strings.TrimPrefix(pattern, "*"))
	default:
		return false
	}
}
