package harness

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
	"github.com/judinizz/ns3-network-simulations/netsim"
)

// ErrRoutesNotReady means a workload was scheduled before addressing and
// routing completed, or between nodes the routes do not connect
var ErrRoutesNotReady = errors.New("addresses and routes are not ready")

// first subnet handed out; each link after the first gets the next /24
const (
	baseNetwork = "10.1.1.0"
	baseMask    = "255.255.255.0"
)

// Addressing records the subnet and the two interface addresses of every link
type Addressing struct {
	topo    *Topology
	Subnets []netsim.Subnet
	addrs   [][2]netsim.Ipv4Address
	ready   bool
}

// AssignAddresses walks the links in creation order, gives each the next
// subnet with .1 on endpoint A and .2 on endpoint B, then populates global
// routes.  Any failure leaves the topology without routes.
func AssignAddresses(topo *Topology) (*Addressing, error) {
	ad := &Addressing{topo: topo}
	var ah netsim.AddressHelper
	if err := ah.SetBase(baseNetwork, baseMask); err != nil {
		return nil, err
	}

	for idx, link := range topo.Links {
		if idx > 0 {
			if err := ah.NewNetwork(); err != nil {
				return nil, fmt.Errorf("link %d of %d: %w", idx, len(topo.Links), err)
			}
		}
		addrs, err := ah.Assign(link.Channel)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", idx, err)
		}
		ad.Subnets = append(ad.Subnets, ah.Subnet())
		ad.addrs = append(ad.addrs, addrs)
		logger.AddrLog.WithFields(logrus.Fields{"link": idx, "subnet": ah.Subnet().String(),
			link.A.Name: addrs[0].String(), link.B.Name: addrs[1].String()}).Debug("link addressed")
	}

	if err := topo.sim.PopulateRoutingTables(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRoutesNotReady, err)
	}
	ad.ready = true
	return ad, nil
}

// Ready is true once every link is addressed and routes are populated
func (ad *Addressing) Ready() bool {
	return ad != nil && ad.ready && ad.topo.sim.RoutesReady()
}

// AddressOf returns the address of endpoint 0 (A) or 1 (B) of the link
func (ad *Addressing) AddressOf(link *Link, endpoint int) netsim.Ipv4Address {
	return ad.addrs[link.ID][endpoint]
}

// AddressOn returns the node's address on the link
func (ad *Addressing) AddressOn(link *Link, tn *TopoNode) (netsim.Ipv4Address, bool) {
	switch tn {
	case link.A:
		return ad.addrs[link.ID][0], true
	case link.B:
		return ad.addrs[link.ID][1], true
	}
	return 0, false
}

// PrimaryAddress is the node's address on the first link it belongs to
func (ad *Addressing) PrimaryAddress(tn *TopoNode) (netsim.Ipv4Address, bool) {
	links := ad.topo.LinksOf(tn)
	if len(links) == 0 {
		return 0, false
	}
	return ad.AddressOn(links[0], tn)
}

// OwnerOf returns the node holding addr, nil if no link carries it
func (ad *Addressing) OwnerOf(addr netsim.Ipv4Address) *TopoNode {
	for _, link := range ad.topo.Links {
		switch addr {
		case ad.addrs[link.ID][0]:
			return link.A
		case ad.addrs[link.ID][1]:
			return link.B
		}
	}
	return nil
}

// CheckReachable reports ErrRoutesNotReady unless src has a route to addr
func (ad *Addressing) CheckReachable(src *TopoNode, addr netsim.Ipv4Address) error {
	if !ad.Ready() {
		return ErrRoutesNotReady
	}
	if !src.Node.HasRoute(addr) {
		return fmt.Errorf("%w: no route from %s to %s", ErrRoutesNotReady, src.Name, addr)
	}
	return nil
}
