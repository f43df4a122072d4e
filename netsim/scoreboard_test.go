package netsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeSetMergesOverlapsAndNeighbours(t *testing.T) {
	var rs rangeSet
	rs = rs.add(10, 20)
	rs = rs.add(40, 50)
	rs = rs.add(20, 25)
	assert.Equal(t, rangeSet{{10, 25}, {40, 50}}, rs)

	rs = rs.add(5, 45)
	assert.Equal(t, rangeSet{{5, 50}}, rs)
	assert.Equal(t, uint64(45), rs.bytes())

	rs = rs.add(60, 60)
	assert.Len(t, rs, 1)
}

func TestRangeSetQueries(t *testing.T) {
	rs := rangeSet{{10, 20}, {30, 40}}

	assert.Equal(t, uint64(15), rs.bytesIn(15, 35))
	r, ok := rs.containing(35)
	assert.True(t, ok)
	assert.Equal(t, seqRange{30, 40}, r)
	_, ok = rs.containing(25)
	assert.False(t, ok)

	nxt, ok := rs.nextStart(12)
	assert.True(t, ok)
	assert.Equal(t, uint64(30), nxt)
	_, ok = rs.nextStart(30)
	assert.False(t, ok)

	assert.Equal(t, uint64(40), rs.highest())
	assert.Equal(t, rangeSet{{15, 20}, {30, 40}}, rs.trimBelow(15))

	other := rangeSet{{18, 32}, {38, 60}}
	assert.Equal(t, uint64(6), rs.overlapIn(other, 0, 100))
	assert.Equal(t, uint64(4), rs.overlapIn(other, 0, 31))
}

func TestSackBlocksLeadWithLatestArrival(t *testing.T) {
	sock := &TcpSocket{ooo: rangeSet{{10, 20}, {30, 40}, {50, 60}, {70, 80}, {90, 100}}}
	sock.lastRcvd = seqRange{30, 40}

	blocks := sock.sackBlocks()
	assert.Len(t, blocks, maxSackBlocks)
	assert.Equal(t, SackBlock{Start: 30, End: 40}, blocks[0])
	assert.Equal(t, SackBlock{Start: 90, End: 100}, blocks[1])
	assert.Equal(t, SackBlock{Start: 70, End: 80}, blocks[2])
}

func TestPipeLeavesOutSackedAndLostBytes(t *testing.T) {
	sock := &TcpSocket{cfg: TcpConfig{SegmentSize: 100}, sndUna: 1, sndNxt: 501,
		sacked: rangeSet{{201, 501}}}
	assert.Equal(t, uint64(200), sock.pipe())

	sock.lossBound = 201
	assert.Zero(t, sock.pipe())
	start, end, ok := sock.nextHole()
	assert.True(t, ok)
	assert.Equal(t, []uint64{1, 101}, []uint64{start, end})

	// a resent hole is back in flight
	sock.rtxed = sock.rtxed.add(1, 101)
	assert.Equal(t, uint64(100), sock.pipe())
	start, end, ok = sock.nextHole()
	assert.True(t, ok)
	assert.Equal(t, []uint64{101, 201}, []uint64{start, end})

	sock.rtxed = sock.rtxed.add(101, 201)
	_, _, ok = sock.nextHole()
	assert.False(t, ok)
}
