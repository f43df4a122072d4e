package netsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIpv4RoundTrips(t *testing.T) {
	addr, err := ParseIpv4("10.1.3.2")
	require.NoError(t, err)
	assert.Equal(t, Ipv4Address(0x0a010302), addr)
	assert.Equal(t, "10.1.3.2", addr.String())

	for _, bad := range []string{"10.1.3", "10.1.3.256", "a.b.c.d", ""} {
		_, err := ParseIpv4(bad)
		assert.ErrorIs(t, err, ErrBadAddress, bad)
	}
}

func TestParseIpv4Mask(t *testing.T) {
	mask, err := ParseIpv4Mask("255.255.255.0")
	require.NoError(t, err)
	assert.Equal(t, 24, mask.PrefixLength())

	mask, err = ParseIpv4Mask("/16")
	require.NoError(t, err)
	assert.Equal(t, "255.255.0.0", mask.String())

	_, err = ParseIpv4Mask("255.0.255.0")
	assert.Error(t, err)
}

func TestSubnetContains(t *testing.T) {
	sn := Subnet{Network: MustParseIpv4("10.1.2.0"), Mask: Ipv4Mask(0xffffff00)}
	assert.True(t, sn.Contains(MustParseIpv4("10.1.2.200")))
	assert.False(t, sn.Contains(MustParseIpv4("10.1.3.1")))
	assert.Equal(t, "10.1.2.0/24", sn.String())
}

func TestAddressHelperHandsOutConsecutiveNetworks(t *testing.T) {
	sim := NewSimulator()
	a := sim.CreateNode("a")
	b := sim.CreateNode("b")
	c := sim.CreateNode("c")
	ab, err := sim.Connect(a, b, PointToPoint, 1e6, 0.001)
	require.NoError(t, err)
	bc, err := sim.Connect(b, c, PointToPoint, 1e6, 0.001)
	require.NoError(t, err)

	var ah AddressHelper
	require.NoError(t, ah.SetBase("10.1.1.0", "255.255.255.0"))

	addrs, err := ah.Assign(ab)
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", addrs[0].String())
	assert.Equal(t, "10.1.1.2", addrs[1].String())

	require.NoError(t, ah.NewNetwork())
	addrs, err = ah.Assign(bc)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.1", addrs[0].String())
	assert.Equal(t, "10.1.2.2", addrs[1].String())

	got, ok := c.Devices()[0].Address()
	assert.True(t, ok)
	assert.Equal(t, addrs[1], got)
}

func TestAddressHelperReportsExhaustion(t *testing.T) {
	var ah AddressHelper
	require.NoError(t, ah.SetBase("10.1.255.0", "255.255.255.0"))
	assert.ErrorIs(t, ah.NewNetwork(), ErrSubnetExhausted)

	require.NoError(t, ah.SetBase("10.1.1.0", "255.255.255.252"))
	_, err := ah.NextAddress()
	require.NoError(t, err)
	_, err = ah.NextAddress()
	require.NoError(t, err)
	_, err = ah.NextAddress()
	assert.ErrorIs(t, err, ErrSubnetExhausted)
}
