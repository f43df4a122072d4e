package harness

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
	"github.com/judinizz/ns3-network-simulations/netsim"
)

// InjectErrors attaches one rate error model to the receive side of both
// devices of the link.  A rate of 0 attaches nothing.  Links that are not
// point-to-point are left alone and the run goes on without loss; the
// returned model is nil in both cases.
func InjectErrors(topo *Topology, link *Link, rate float64, unit netsim.ErrorUnit) (*netsim.RateErrorModel, error) {
	if math.IsNaN(rate) || rate < 0.0 || rate >= 1.0 {
		return nil, fmt.Errorf("%w: error rate %g", netsim.ErrBadProbability, rate)
	}
	if link == nil || rate == 0.0 {
		return nil, nil
	}
	if link.Kind != netsim.PointToPoint {
		logger.ErrLog.WithFields(logrus.Fields{"link": link.ID, "kind": link.Kind.String()}).
			Debug("error model not attached to a device that is not point-to-point")
		return nil, nil
	}

	rngName := fmt.Sprintf("errmodel-link%d", link.ID)
	em, err := netsim.NewRateErrorModel(rate, unit, topo.sim.NewRngStream(rngName))
	if err != nil {
		return nil, err
	}
	for _, dev := range link.Channel.Devices() {
		dev.SetReceiveErrorModel(em)
	}
	logger.ErrLog.WithFields(logrus.Fields{"link": link.ID, "rate": rate, "unit": unit.String()}).
		Debug("error model attached")
	return em, nil
}
