package netsim

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Ipv4Address is a 32 bit host address in network byte order
type Ipv4Address uint32

// Ipv4Mask is a contiguous network mask
type Ipv4Mask uint32

var (
	// ErrSubnetExhausted is returned when the address helper runs out of networks or hosts
	ErrSubnetExhausted = errors.New("address space exhausted")

	// ErrBadAddress is returned for text that is not a dotted quad
	ErrBadAddress = errors.New("malformed IPv4 address")
)

// ParseIpv4 converts dotted-quad text like "10.1.1.0"
func ParseIpv4(text string) (Ipv4Address, error) {
	parts := strings.Split(strings.TrimSpace(text), ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrBadAddress, text)
	}
	var addr uint32
	for _, part := range parts {
		octet, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadAddress, text)
		}
		addr = addr<<8 | uint32(octet)
	}
	return Ipv4Address(addr), nil
}

// MustParseIpv4 panics on malformed input; intended for constants
func MustParseIpv4(text string) Ipv4Address {
	addr, err := ParseIpv4(text)
	if err != nil {
		panic(err)
	}
	return addr
}

func (addr Ipv4Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// CombineMask returns the network part of the address
func (addr Ipv4Address) CombineMask(mask Ipv4Mask) Ipv4Address {
	return Ipv4Address(uint32(addr) & uint32(mask))
}

// ParseIpv4Mask accepts either a dotted quad ("255.255.255.0") or a prefix length ("/24")
func ParseIpv4Mask(text string) (Ipv4Mask, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		prefix, err := strconv.Atoi(text[1:])
		if err != nil || prefix < 0 || prefix > 32 {
			return 0, fmt.Errorf("%w: mask %q", ErrBadAddress, text)
		}
		if prefix == 0 {
			return 0, nil
		}
		return Ipv4Mask(^uint32(0) << (32 - prefix)), nil
	}
	addr, err := ParseIpv4(text)
	if err != nil {
		return 0, err
	}
	mask := Ipv4Mask(addr)
	// the host part must be all ones below the last network bit
	inverted := ^uint32(mask)
	if inverted&(inverted+1) != 0 {
		return 0, fmt.Errorf("%w: mask %q is not contiguous", ErrBadAddress, text)
	}
	return mask, nil
}

// PrefixLength counts the network bits
func (mask Ipv4Mask) PrefixLength() int {
	count := 0
	for bits := uint32(mask); bits&0x80000000 != 0; bits <<= 1 {
		count++
	}
	return count
}

func (mask Ipv4Mask) String() string {
	return Ipv4Address(mask).String()
}

// Subnet is a network address together with its mask
type Subnet struct {
	Network Ipv4Address
	Mask    Ipv4Mask
}

// Contains reports whether the address lies in the subnet
func (sn Subnet) Contains(addr Ipv4Address) bool {
	return addr.CombineMask(sn.Mask) == sn.Network
}

func (sn Subnet) String() string {
	return fmt.Sprintf("%s/%d", sn.Network, sn.Mask.PrefixLength())
}

// AddressHelper hands out consecutive host addresses from a current network and
// steps to the next network of the same size on demand.  The network never
// leaves the /16 block it started in.
type AddressHelper struct {
	base    Ipv4Address
	network Ipv4Address
	mask    Ipv4Mask
	host    uint32
}

// SetBase selects the first network and resets the host counter
func (ah *AddressHelper) SetBase(network, mask string) error {
	netAddr, err := ParseIpv4(network)
	if err != nil {
		return err
	}
	netMask, err := ParseIpv4Mask(mask)
	if err != nil {
		return err
	}
	if netMask.PrefixLength() < 16 {
		return fmt.Errorf("%w: mask %s is wider than a /16", ErrBadAddress, netMask)
	}
	ah.base = netAddr.CombineMask(netMask)
	ah.network = ah.base
	ah.mask = netMask
	ah.host = 0
	return nil
}

// Subnet returns the network currently being assigned from
func (ah *AddressHelper) Subnet() Subnet {
	return Subnet{Network: ah.network, Mask: ah.mask}
}

// NewNetwork advances to the next network and resets the host counter
func (ah *AddressHelper) NewNetwork() error {
	step := ^uint32(ah.mask) + 1
	next := uint32(ah.network) + step
	if next&0xffff0000 != uint32(ah.base)&0xffff0000 || next < uint32(ah.network) {
		return fmt.Errorf("%w: no network after %s", ErrSubnetExhausted, ah.Subnet())
	}
	ah.network = Ipv4Address(next)
	ah.host = 0
	return nil
}

// NextAddress returns the next unused host address of the current network
func (ah *AddressHelper) NextAddress() (Ipv4Address, error) {
	hostMax := ^uint32(ah.mask) - 1
	if ah.host >= hostMax {
		return 0, fmt.Errorf("%w: no host left in %s", ErrSubnetExhausted, ah.Subnet())
	}
	ah.host++
	return Ipv4Address(uint32(ah.network) + ah.host), nil
}

// Assign gives each device of the channel the next host address, in the order
// the devices were attached to the channel
func (ah *AddressHelper) Assign(ch *Channel) ([2]Ipv4Address, error) {
	var addrs [2]Ipv4Address
	for idx, dev := range ch.devices {
		addr, err := ah.NextAddress()
		if err != nil {
			return addrs, err
		}
		dev.SetAddress(addr, ah.mask)
		addrs[idx] = addr
	}
	return addrs, nil
}
