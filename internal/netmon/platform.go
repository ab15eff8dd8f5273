package netmon

import (
	"context"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/halcyon-app/netstate/pkg/types"
)

// Source reports the set of raw connection-type tags currently offered by
// the platform. One tag is emitted per usable link; the monitor resolves
// the set to a single NetworkType by fixed priority.
type Source interface {
	Tags(ctx context.Context) ([]types.NetworkType, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context) ([]types.NetworkType, error)

// Tags implements Source.
func (f SourceFunc) Tags(ctx context.Context) ([]types.NetworkType, error) {
	return f(ctx)
}

// InterfaceSource derives connection tags from the operating system's
// network interface table. An interface counts as a usable link when it is
// up, not a loopback and has at least one address assigned.
type InterfaceSource struct{}

// NewInterfaceSource returns the default OS-backed source.
func NewInterfaceSource() *InterfaceSource {
	return &InterfaceSource{}
}

// Tags implements Source.
func (s *InterfaceSource) Tags(ctx context.Context) ([]types.NetworkType, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var tags []types.NetworkType
	for _, iface := range ifaces {
		if !interfaceUsable(iface) {
			continue
		}
		tags = append(tags, classifyInterface(iface.Name))
	}
	return tags, nil
}

func interfaceUsable(iface psnet.InterfaceStat) bool {
	up := false
	for _, flag := range iface.Flags {
		switch strings.ToLower(flag) {
		case "up":
			up = true
		case "loopback":
			return false
		}
	}
	return up && len(iface.Addrs) > 0
}

// classifyInterface maps an interface name to a connection tag using common
// kernel naming conventions. Unrecognized names fall back to "other".
func classifyInterface(name string) types.NetworkType {
	lower := strings.ToLower(name)
	switch {
	case hasAnyPrefix(lower, "wg", "tun", "tap", "utun", "ppp", "ipsec"):
		return types.NetworkVPN
	case hasAnyPrefix(lower, "wl", "wifi", "ath", "airport"):
		return types.NetworkWifi
	case hasAnyPrefix(lower, "wwan", "rmnet", "ccmni", "usb"):
		return types.NetworkMobile
	case hasAnyPrefix(lower, "bnep", "bt-"):
		return types.NetworkBluetooth
	case hasAnyPrefix(lower, "eth", "en", "em", "eno", "ens", "enp", "lan"):
		return types.NetworkEthernet
	default:
		return types.NetworkOther
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
