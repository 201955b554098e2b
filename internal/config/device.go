package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Device is the BACnet device identity, read from an INI file that is
// wire-compatible with the [BACpypes] section used by existing deployments.
type Device struct {
	ObjectName       string
	ObjectIdentifier uint32
	VendorIdentifier uint16
	// Address is the raw ip[/prefix][:port] string from the file.
	Address string
}

const maxDeviceInstance = 0x3FFFFF

// LoadDevice reads the device identity file. A missing or malformed file
// is a fatal startup error.
func LoadDevice(path string) (*Device, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read device file %s: %w", path, err)
	}

	sec := f.Section("BACpypes")
	if len(sec.Keys()) == 0 {
		sec = f.Section(ini.DefaultSection)
	}

	dev := &Device{
		ObjectName: sec.Key("objectName").String(),
		Address:    sec.Key("address").String(),
	}

	id, err := sec.Key("objectIdentifier").Uint64()
	if err != nil {
		return nil, fmt.Errorf("config: device objectIdentifier: %w", err)
	}
	if id > maxDeviceInstance {
		return nil, fmt.Errorf("config: device objectIdentifier %d out of range", id)
	}
	dev.ObjectIdentifier = uint32(id)

	vendor, err := sec.Key("vendorIdentifier").Uint64()
	if err != nil {
		return nil, fmt.Errorf("config: device vendorIdentifier: %w", err)
	}
	dev.VendorIdentifier = uint16(vendor)

	if dev.ObjectName == "" {
		return nil, fmt.Errorf("config: device objectName is required")
	}
	if dev.Address == "" {
		return nil, fmt.Errorf("config: device address is required")
	}

	return dev, nil
}

// UDPAddr resolves the device address string to a bindable UDP address.
// The address may carry a /prefix (ignored for binding) and a :port;
// defaultPort is used when no port is given.
func (d *Device) UDPAddr(defaultPort int) (*net.UDPAddr, error) {
	addr := d.Address
	port := defaultPort

	if i := strings.LastIndex(addr, ":"); i >= 0 {
		p, err := strconv.Atoi(addr[i+1:])
		if err != nil {
			return nil, fmt.Errorf("config: device address port: %w", err)
		}
		port = p
		addr = addr[:i]
	}
	if i := strings.Index(addr, "/"); i >= 0 {
		addr = addr[:i]
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("config: device address %q is not an IP address", addr)
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// BroadcastAddr derives the local broadcast address from the /prefix part
// of the device address. Falls back to the limited broadcast address when
// no prefix is present.
func (d *Device) BroadcastAddr(defaultPort int) (*net.UDPAddr, error) {
	addr := d.Address
	port := defaultPort

	if i := strings.LastIndex(addr, ":"); i >= 0 {
		p, err := strconv.Atoi(addr[i+1:])
		if err == nil {
			port = p
		}
		addr = addr[:i]
	}

	if !strings.Contains(addr, "/") {
		return &net.UDPAddr{IP: net.IPv4bcast, Port: port}, nil
	}

	ip, ipnet, err := net.ParseCIDR(addr)
	if err != nil {
		return nil, fmt.Errorf("config: device address: %w", err)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return &net.UDPAddr{IP: net.IPv4bcast, Port: port}, nil
	}
	bcast := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		bcast[i] = ip4[i] | ^ipnet.Mask[i]
	}
	return &net.UDPAddr{IP: bcast, Port: port}, nil
}
