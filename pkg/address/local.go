package address

import (
	"errors"
	"net"
)

// Resolver yields this host's own IPv4 address.
type Resolver func() (net.IP, error)

// ErrNoIPv4 is returned when no usable interface address exists.
var ErrNoIPv4 = errors.New("address: no non-loopback IPv4 interface")

// LocalIPv4 returns the first IPv4 address of an up, non-loopback interface.
func LocalIPv4() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if v4 := ip.To4(); v4 != nil && !v4.IsLinkLocalUnicast() {
				return v4, nil
			}
		}
	}
	return nil, ErrNoIPv4
}

// Static returns a Resolver that always yields ip.
func Static(ip net.IP) Resolver {
	return func() (net.IP, error) { return ip, nil }
}

// Local returns the word address of this host.
func Local(r Resolver) (string, error) {
	if r == nil {
		r = LocalIPv4
	}
	ip, err := r()
	if err != nil {
		return "", err
	}
	return FromIP(ip), nil
}
