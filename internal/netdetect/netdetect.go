package netdetect

import (
	"fmt"
	"net"
	"strings"
)

// AnyInterface is the pseudo-interface tcpdump accepts to capture on all links.
const AnyInterface = "any"

// InterfaceInfo represents a network interface with its properties.
type InterfaceInfo struct {
	Name       string   // System interface name (e.g., "eth0", "lo")
	Addresses  []string // IP addresses assigned to this interface
	IsUp       bool
	IsLoopback bool
}

// ListInterfaces returns the interfaces of the local host.
func ListInterfaces() ([]InterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list network interfaces: %w", err)
	}
	return collect(ifaces, func(iface net.Interface) ([]net.Addr, error) {
		return iface.Addrs()
	}), nil
}

func collect(ifaces []net.Interface, addrs func(net.Interface) ([]net.Addr, error)) []InterfaceInfo {
	out := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		info := InterfaceInfo{
			Name:       iface.Name,
			IsUp:       iface.Flags&net.FlagUp != 0,
			IsLoopback: iface.Flags&net.FlagLoopback != 0,
		}
		// Address lookup failures leave the interface listed without addresses
		list, err := addrs(iface)
		if err == nil {
			for _, a := range list {
				if ip := addrIP(a); ip != nil {
					info.Addresses = append(info.Addresses, ip.String())
				}
			}
		}
		out = append(out, info)
	}
	return out
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}

// Lookup finds an interface by name. AnyInterface always matches.
func Lookup(interfaces []InterfaceInfo, name string) (InterfaceInfo, bool) {
	if name == AnyInterface {
		return InterfaceInfo{Name: AnyInterface, IsUp: true}, true
	}
	for _, info := range interfaces {
		if info.Name == name {
			return info, true
		}
	}
	return InterfaceInfo{}, false
}

// Validate reports an error when name is not a usable capture interface.
func Validate(interfaces []InterfaceInfo, name string) error {
	info, ok := Lookup(interfaces, name)
	if !ok {
		names := make([]string, 0, len(interfaces))
		for _, i := range interfaces {
			names = append(names, i.Name)
		}
		return fmt.Errorf("interface %q not found (available: %s)", name, strings.Join(names, ", "))
	}
	if !info.IsUp {
		return fmt.Errorf("interface %q is down", name)
	}
	return nil
}

// GetInterfaceAddressString returns up to three addresses, comma separated.
func GetInterfaceAddressString(info InterfaceInfo) string {
	if len(info.Addresses) == 0 {
		return "no addresses"
	}
	if len(info.Addresses) <= 3 {
		return strings.Join(info.Addresses, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(info.Addresses[:3], ", "), len(info.Addresses)-3)
}

// Describe formats one interface for listing.
func Describe(info InterfaceInfo) string {
	var flags []string
	if info.IsUp {
		flags = append(flags, "up")
	} else {
		flags = append(flags, "down")
	}
	if info.IsLoopback {
		flags = append(flags, "loopback")
	}
	return fmt.Sprintf("%-12s %-14s %s", info.Name, strings.Join(flags, ","), GetInterfaceAddressString(info))
}
