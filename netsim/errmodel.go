package netsim

import (
	"errors"
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// ErrorModel decides whether an arriving packet is corrupted and must be discarded
type ErrorModel interface {
	IsCorrupt(pckt *Packet) bool
}

// ErrBadProbability is returned for an error rate outside [0,1)
var ErrBadProbability = errors.New("error rate must lie in [0,1)")

// ErrorUnit says what the rate of a RateErrorModel applies to
type ErrorUnit int

const (
	// PerPacket drops each packet with probability equal to the rate
	PerPacket ErrorUnit = iota
	// PerByte treats the rate as a byte error rate, so a packet of n bytes
	// survives with probability (1-rate)^n
	PerByte
)

// ErrorUnitFromStr returns the unit named by the string
func ErrorUnitFromStr(unit string) (ErrorUnit, error) {
	switch unit {
	case "", "packet", "Packet", "ERROR_UNIT_PACKET":
		return PerPacket, nil
	case "byte", "Byte", "ERROR_UNIT_BYTE":
		return PerByte, nil
	}
	return PerPacket, fmt.Errorf("unknown error unit %q", unit)
}

func (unit ErrorUnit) String() string {
	if unit == PerByte {
		return "byte"
	}
	return "packet"
}

// RateErrorModel discards packets at random with a fixed rate
type RateErrorModel struct {
	rate    float64
	unit    ErrorUnit
	rngstrm *rngstream.RngStream
	drops   int
	offered int
}

// NewRateErrorModel checks the rate and builds the model around a random stream
func NewRateErrorModel(rate float64, unit ErrorUnit, rngstrm *rngstream.RngStream) (*RateErrorModel, error) {
	if math.IsNaN(rate) || rate < 0.0 || rate >= 1.0 {
		return nil, fmt.Errorf("%w: got %g", ErrBadProbability, rate)
	}
	if rngstrm == nil {
		return nil, fmt.Errorf("rate error model needs a random stream")
	}
	return &RateErrorModel{rate: rate, unit: unit, rngstrm: rngstrm}, nil
}

// Rate returns the configured rate
func (em *RateErrorModel) Rate() float64 {
	return em.rate
}

// Unit returns what the rate applies to
func (em *RateErrorModel) Unit() ErrorUnit {
	return em.unit
}

// Drops is the number of packets the model discarded
func (em *RateErrorModel) Drops() int {
	return em.drops
}

// Offered is the number of packets the model was asked about
func (em *RateErrorModel) Offered() int {
	return em.offered
}

// IsCorrupt draws one uniform sample per packet
func (em *RateErrorModel) IsCorrupt(pckt *Packet) bool {
	em.offered++
	if em.rate <= 0.0 {
		return false
	}
	prDrop := em.rate
	if em.unit == PerByte {
		prDrop = 1.0 - math.Pow(1.0-em.rate, float64(pckt.Size()+pppHeaderSize))
	}
	if em.rngstrm.RandU01() < prDrop {
		em.drops++
		return true
	}
	return false
}
