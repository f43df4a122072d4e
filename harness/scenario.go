package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
	"github.com/judinizz/ns3-network-simulations/netsim"
)

// ErrBadScenario is returned when a scenario cannot be run as described
var ErrBadScenario = errors.New("invalid scenario")

// Scenario kinds
const (
	KindBulk = "bulk"
	KindEcho = "echo"
	KindDual = "dual"
)

// Values of Scenario.Report for bulk runs
const (
	ReportFlows     = "flows"
	ReportDelay     = "delay"
	ReportErrorRate = "errorRate"
)

// A Scenario describes one experiment run.  Rates and delays are written
// with units ("1Mbps", "20ms").  Zero values are filled in by Complete.
type Scenario struct {
	Name     string `json:"name" yaml:"name"`
	Kind     string `json:"kind" yaml:"kind"`
	Shape    string `json:"shape" yaml:"shape"`
	Strategy string `json:"strategy" yaml:"strategy"`

	DataRate    string `json:"dataRate,omitempty" yaml:"dataRate,omitempty"`
	Delay       string `json:"delay,omitempty" yaml:"delay,omitempty"`
	AccessRate  string `json:"accessRate,omitempty" yaml:"accessRate,omitempty"`
	AccessDelay string `json:"accessDelay,omitempty" yaml:"accessDelay,omitempty"`

	// access delays of the two destinations of a dual run
	Delay1 string `json:"delay1,omitempty" yaml:"delay1,omitempty"`
	Delay2 string `json:"delay2,omitempty" yaml:"delay2,omitempty"`

	ErrorRate float64 `json:"errorRate" yaml:"errorRate"`
	ErrorUnit string  `json:"errorUnit,omitempty" yaml:"errorUnit,omitempty"`

	NFlows   int    `json:"nFlows,omitempty" yaml:"nFlows,omitempty"`
	Leaves   int    `json:"leaves,omitempty" yaml:"leaves,omitempty"`
	Routers  int    `json:"routers,omitempty" yaml:"routers,omitempty"`
	Packets  int    `json:"packets,omitempty" yaml:"packets,omitempty"`
	MaxBytes uint64 `json:"maxBytes,omitempty" yaml:"maxBytes,omitempty"`
	SendSize uint32 `json:"sendSize,omitempty" yaml:"sendSize,omitempty"`

	Stop   float64 `json:"stop" yaml:"stop"`
	Report string  `json:"report,omitempty" yaml:"report,omitempty"`

	Prefix     string  `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	OutputDir  string  `json:"outputDir,omitempty" yaml:"outputDir,omitempty"`
	Tracing    bool    `json:"tracing" yaml:"tracing"`
	TraceStart float64 `json:"traceStart,omitempty" yaml:"traceStart,omitempty"`
	TracePath  string  `json:"tracePath,omitempty" yaml:"tracePath,omitempty"`

	// PacketTrace, when set, names a yaml or json file receiving every device event
	PacketTrace string `json:"packetTrace,omitempty" yaml:"packetTrace,omitempty"`

	// TopoFile, when set, names a yaml or json file receiving the built topology
	TopoFile string `json:"topoFile,omitempty" yaml:"topoFile,omitempty"`

	// Seed drives every random stream of the run; equal seeds give equal runs
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Tcp, when set, replaces the TCP constants every socket starts with
	Tcp *netsim.TcpConfig `json:"tcp,omitempty" yaml:"tcp,omitempty"`
}

// presets reproduce the experiments the harness was first written for
var presets = map[string]Scenario{
	"part1a": {Name: "part1a", Kind: KindBulk, Shape: "linear", Strategy: "TcpCubic", DataRate: "1Mbps",
		Delay: "20ms", ErrorRate: 0.00001, NFlows: 1, Stop: 20.0, Report: ReportFlows, Prefix: "lab2-part1",
		Tracing: true},
	"part1b": {Name: "part1b", Kind: KindBulk, Shape: "dumbbell", Strategy: "TcpCubic", DataRate: "1Mbps",
		Delay: "50ms", ErrorRate: 0.00001, NFlows: 1, Stop: 20.0, Report: ReportDelay, Prefix: "lab2-part1b"},
	"part1c": {Name: "part1c", Kind: KindBulk, Shape: "dumbbell", Strategy: "TcpCubic", DataRate: "1Mbps",
		Delay: "1ms", ErrorRate: 0.00001, NFlows: 1, Stop: 20.0, Report: ReportErrorRate, Prefix: "lab2-part1c"},
	"part2": {Name: "part2", Kind: KindDual, Shape: "dual-destination", Strategy: "TcpCubic", DataRate: "2Mbps",
		Delay: "20ms", AccessRate: "10Mbps", Delay1: "10ms", Delay2: "50ms", Stop: 20.0, Prefix: "lab2-part2"},
	"first": {Name: "first", Kind: KindEcho, Shape: "fanout", Strategy: "TcpNewReno", Leaves: 1, Packets: 1,
		Stop: 20.0, Prefix: "first"},
	"second": {Name: "second", Kind: KindEcho, Shape: "csma", Strategy: "TcpNewReno", Leaves: 4, Packets: 1,
		Stop: 30.0, Prefix: "second"},
	"third": {Name: "third", Kind: KindEcho, Shape: "dual-access", Strategy: "TcpNewReno", Leaves: 4, Packets: 1,
		Stop: 25.0, Prefix: "third"},
}

// Preset returns a copy of a named preset scenario
func Preset(name string) (*Scenario, error) {
	sc, present := presets[name]
	if !present {
		return nil, fmt.Errorf("%w: no preset named %q (have %s)", ErrBadScenario, name,
			strings.Join(PresetNames(), ","))
	}
	return &sc, nil
}

// PresetNames lists the preset scenario names, sorted
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteToFile stores the Scenario in the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (sc *Scenario) WriteToFile(filename string) error {
	return writeByExt(filename, *sc)
}

// ReadScenario deserializes a slice of bytes into a Scenario.  If the slice is
// empty the file whose name is given is read instead.
func ReadScenario(filename string, useYAML bool, dict []byte) (*Scenario, error) {
	dict, err := readBytes(filename, dict)
	if err != nil {
		return nil, err
	}
	sc := Scenario{}
	if useYAML {
		err = yaml.Unmarshal(dict, &sc)
	} else {
		err = json.Unmarshal(dict, &sc)
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

var rateUnits = []struct {
	suffix string
	scale  float64
}{
	{"gbps", 1e9}, {"mbps", 1e6}, {"kbps", 1e3}, {"bps", 1.0},
	{"gb/s", 1e9}, {"mb/s", 1e6}, {"kb/s", 1e3}, {"b/s", 1.0},
}

// ParseDataRate converts a rate such as "1Mbps" or "54Mbps" into bits per second.
// A bare number is taken as bits per second.
func ParseDataRate(text string) (float64, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	scale := 1.0
	for _, unit := range rateUnits {
		if strings.HasSuffix(lower, unit.suffix) {
			lower = strings.TrimSuffix(lower, unit.suffix)
			scale = unit.scale
			break
		}
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(lower), 64)
	if err != nil || !(val > 0.0) || math.IsInf(val, 0) {
		return 0.0, fmt.Errorf("%w: data rate %q", ErrBadScenario, text)
	}
	return val * scale, nil
}

// ParseDelay converts a delay such as "20ms" or "6560ns" into seconds.
// A bare number is taken as seconds.
func ParseDelay(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if secs, err := strconv.ParseFloat(text, 64); err == nil && secs >= 0.0 {
		return secs, nil
	}
	dur, err := time.ParseDuration(text)
	if err != nil || dur < 0 {
		return 0.0, fmt.Errorf("%w: delay %q", ErrBadScenario, text)
	}
	return dur.Seconds(), nil
}

// Complete fills in the settings a scenario left empty
func (sc *Scenario) Complete() {
	if sc.Kind == "" {
		sc.Kind = KindBulk
	}
	if sc.Shape == "" {
		switch sc.Kind {
		case KindEcho:
			sc.Shape = FanOut.String()
		case KindDual:
			sc.Shape = DualDestination.String()
		default:
			sc.Shape = Dumbbell.String()
		}
	}
	if sc.Strategy == "" {
		sc.Strategy = netsim.NewReno.ShortName()
	}
	if sc.Stop == 0.0 {
		sc.Stop = 20.0
	}
	sc.NFlows = clampCount("nFlows", sc.NFlows, maxBulkFlows)
	sc.Packets = clampCount("packets", sc.Packets, 0)
	if sc.Seed == 0 {
		sc.Seed = netsim.DefaultSeed
	}
	if sc.SendSize == 0 {
		sc.SendSize = 400
	}
	if sc.Report == "" {
		sc.Report = ReportDelay
	}
	if sc.Prefix == "" {
		sc.Prefix = sc.Name
	}
	if sc.Prefix == "" {
		sc.Prefix = "ccexp"
	}
	if sc.TraceStart == 0.0 {
		sc.TraceStart = 1.01
	}
	if sc.TracePath == "" {
		sc.TracePath = CwndPath("*", "*")
	}
}

// clampCount moves a count below 1 up to 1 and, when ceiling is positive,
// one above ceiling down to it
func clampCount(name string, count, ceiling int) int {
	used := count
	switch {
	case used < 1:
		used = 1
	case ceiling > 0 && used > ceiling:
		used = ceiling
	}
	if used != count && count != 0 {
		logger.CfgLog.WithFields(logrus.Fields{"count": name, "requested": count, "used": used}).
			Debug("count clamped")
	}
	return used
}

// shapeConfig converts the scenario's link settings into a ShapeConfig
func (sc *Scenario) shapeConfig() (ShapeConfig, error) {
	shape := ShapeFromStr(sc.Shape)
	if shape == UnknownShape {
		return ShapeConfig{}, fmt.Errorf("%w: %q", ErrUnknownShape, sc.Shape)
	}
	cfg := DefaultShapeConfig(shape)
	errs := []error{}
	setRate := func(text string, dst *float64) {
		if text != "" {
			val, err := ParseDataRate(text)
			errs = append(errs, err)
			*dst = val
		}
	}
	setDelay := func(text string, dst *float64) {
		if text != "" {
			val, err := ParseDelay(text)
			errs = append(errs, err)
			*dst = val
		}
	}
	setRate(sc.DataRate, &cfg.Bottleneck.Rate)
	setDelay(sc.Delay, &cfg.Bottleneck.Delay)
	setRate(sc.AccessRate, &cfg.Access.Rate)
	setDelay(sc.AccessDelay, &cfg.Access.Delay)
	if shape == DualDestination {
		setRate(sc.AccessRate, &cfg.Branch[0].Rate)
		setRate(sc.AccessRate, &cfg.Branch[1].Rate)
		setDelay(sc.Delay1, &cfg.Branch[0].Delay)
		setDelay(sc.Delay2, &cfg.Branch[1].Delay)
	}

	switch shape {
	case Dumbbell:
		cfg.Leaves = sc.NFlows
	case FanOut, DualAccess, CsmaChain:
		if sc.Leaves > 0 {
			cfg.Leaves = sc.Leaves
		}
	}
	if sc.Routers > 0 {
		cfg.Routers = sc.Routers
	}
	return cfg, ReportErrs(errs)
}

// Validate checks everything that can be checked before a simulator exists
func (sc *Scenario) Validate() error {
	errs := []error{}
	switch sc.Kind {
	case KindBulk, KindEcho, KindDual:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown kind %q", ErrBadScenario, sc.Kind))
	}
	if _, err := netsim.LookupStrategy(sc.Strategy); err != nil {
		errs = append(errs, err)
	}
	cfg, err := sc.shapeConfig()
	errs = append(errs, err)
	if err == nil {
		switch {
		case sc.Kind == KindDual && cfg.Shape != DualDestination:
			errs = append(errs, fmt.Errorf("%w: a dual run needs the dual-destination shape", ErrBadScenario))
		case sc.Kind == KindEcho && cfg.Shape != FanOut && cfg.Shape != CsmaChain && cfg.Shape != DualAccess:
			errs = append(errs, fmt.Errorf("%w: echo runs use the fanout, csma or dual-access shape", ErrBadScenario))
		case sc.Kind == KindBulk && cfg.Shape != LinearChain && cfg.Shape != Dumbbell:
			errs = append(errs, fmt.Errorf("%w: bulk runs use the linear or dumbbell shape", ErrBadScenario))
		}
	}
	if math.IsNaN(sc.ErrorRate) || sc.ErrorRate < 0.0 || sc.ErrorRate >= 1.0 {
		errs = append(errs, fmt.Errorf("%w: error rate %g", netsim.ErrBadProbability, sc.ErrorRate))
	}
	if _, err := netsim.ErrorUnitFromStr(sc.ErrorUnit); err != nil {
		errs = append(errs, err)
	}
	if !(sc.Stop > 0.0) {
		errs = append(errs, fmt.Errorf("%w: stop time %g", ErrBadScenario, sc.Stop))
	}
	switch sc.Report {
	case ReportFlows, ReportDelay, ReportErrorRate:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown report %q", ErrBadScenario, sc.Report))
	}
	if sc.Tcp != nil {
		errs = append(errs, sc.Tcp.Validate())
	}
	errs = append(errs, netsim.CheckSeed(sc.Seed))
	if sc.Tracing {
		if _, err := parseSelector(sc.TracePath); err != nil {
			errs = append(errs, err)
		}
	}
	return ReportErrs(errs)
}

// Recorder stores the outcome of a run somewhere outside the process
type Recorder interface {
	RecordRun(res *Result) error
}

// Result is everything a finished run produced
type Result struct {
	Scenario   *Scenario
	Strategy   netsim.CongestionStrategy
	Topology   *Topology
	Addressing *Addressing
	Flows      []*Flow
	Servers    []*EchoServerSpec
	Goodput    *GoodputReport
	Traces     *TraceContext
	TraceFiles []string

	// Drops counts packets the error model discarded
	Drops int

	// Lines is the report, in the order it is printed
	Lines []string
}

// Run builds and runs the scenario in a fresh simulator.  Output files go to
// sc.OutputDir; rec, when not nil, receives the result.
func Run(sc *Scenario, rec Recorder) (*Result, error) {
	sc.Complete()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	cfg, _ := sc.shapeConfig()
	if ok, err := CheckDirectories([]string{sc.OutputDir}); !ok {
		return nil, err
	}

	sim := netsim.NewSimulator()
	if err := sim.SetSeed(sc.Seed); err != nil {
		return nil, err
	}
	if sc.Tcp != nil {
		if err := sim.SetTcpDefaults(*sc.Tcp); err != nil {
			return nil, err
		}
	}
	if sc.PacketTrace != "" {
		sim.SetPacketTrace(netsim.CreateTraceManager(sc.Name, true))
	}
	topo, err := BuildTopology(sim, cfg)
	if err != nil {
		return nil, err
	}
	addr, err := AssignAddresses(topo)
	if err != nil {
		return nil, err
	}

	res := &Result{Scenario: sc, Topology: topo, Addressing: addr}
	unit, _ := netsim.ErrorUnitFromStr(sc.ErrorUnit)
	em, err := InjectErrors(topo, topo.Bottleneck(), sc.ErrorRate, unit)
	if err != nil {
		return nil, err
	}

	orch := NewOrchestrator(topo, addr)
	if res.Strategy, err = orch.SelectStrategy(sc.Strategy); err != nil {
		return nil, err
	}
	if err := addWorkload(sc, topo, addr, orch); err != nil {
		return nil, err
	}
	if err := orch.Schedule(); err != nil {
		return nil, err
	}
	res.Flows = orch.Flows()
	res.Servers = orch.Servers()

	var tracer *Tracer
	if sc.Tracing {
		tracer = NewTracer(sim, NewTraceContext())
		if err := tracer.ConnectPath(sc.TracePath); err != nil {
			return nil, err
		}
		tracer.StartAt(sim, sc.TraceStart)
	}

	logger.MainLog.WithFields(logrus.Fields{"scenario": sc.Name, "kind": sc.Kind, "shape": topo.Shape().String(),
		"strategy": res.Strategy.String(), "stop": sc.Stop}).Info("run starting")
	sim.StopAt(sc.Stop)
	if err := sim.Run(); err != nil {
		return nil, err
	}

	if em != nil {
		res.Drops = em.Drops()
	}
	res.Goodput = MeasureGoodput(res.Flows, 0.0)
	res.Lines = reportLines(sc, res)

	if tracer != nil {
		res.Traces = tracer.Context()
		res.TraceFiles, err = res.Traces.WriteFiles(sc.OutputDir, sc.Prefix)
		if err != nil {
			return res, err
		}
	}
	if sc.PacketTrace != "" {
		if err := sim.PacketTrace().WriteToFile(OutputPath(sc.OutputDir, sc.PacketTrace)); err != nil {
			return res, err
		}
	}
	if sc.TopoFile != "" {
		if err := Describe(sc.Name, topo, addr).WriteToFile(OutputPath(sc.OutputDir, sc.TopoFile)); err != nil {
			return res, err
		}
	}
	if rec != nil {
		if err := rec.RecordRun(res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// DescribeScenario builds and addresses the scenario's topology without
// running anything and returns its description
func DescribeScenario(sc *Scenario) (*TopoDesc, error) {
	sc.Complete()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	cfg, _ := sc.shapeConfig()
	topo, err := BuildTopology(netsim.NewSimulator(), cfg)
	if err != nil {
		return nil, err
	}
	addr, err := AssignAddresses(topo)
	if err != nil {
		return nil, err
	}
	return Describe(sc.Name, topo, addr), nil
}

// echo placement per shape: which node serves, which nodes ask, and when
func addEchoWorkload(sc *Scenario, topo *Topology, addr *Addressing, orch *Orchestrator) error {
	ep := EchoParams{Packets: sc.Packets, Interval: 1.0, Size: 1024, Start: 2.0, Stop: sc.Stop}
	var server *TopoNode
	var clients []*TopoNode
	srvStop := sc.Stop

	switch topo.Shape() {
	case FanOut:
		ep.Port, ep.Ceiling = 15, 5
		ep.JitterLo, ep.JitterHi = 2.0, 7.0
		server = topo.Destinations()[0]
		clients = topo.NodesWithRole(RoleSource)
	case CsmaChain:
		ep.Port, ep.Ceiling = 15, 20
		server = topo.Destinations()[0]
		clients = []*TopoNode{topo.Source()}
	case DualAccess:
		// applications stop at 20 s even when the simulator runs longer
		ep.Port, ep.Ceiling = 9, 20
		ep.Stop = min(sc.Stop, 20.0)
		srvStop = ep.Stop
		stations := topo.NodesWithRole(RoleStation)
		half := len(stations) / 2
		server = stations[half-1]
		clients = []*TopoNode{stations[len(stations)-1]}
	}

	if _, err := orch.AddEchoServer(server, ep.Port, 1.0, srvStop); err != nil {
		return err
	}
	var srvAddr netsim.Ipv4Address
	if topo.Shape() == FanOut {
		// every client targets the server's address on the first link
		srvAddr = addr.AddressOf(topo.Links[0], 1)
	} else {
		var ok bool
		if srvAddr, ok = addr.PrimaryAddress(server); !ok {
			return fmt.Errorf("%w: %s has no address", ErrRoutesNotReady, server.Name)
		}
	}
	for _, client := range clients {
		if _, err := orch.AddEchoClient(client, srvAddr, ep); err != nil {
			return err
		}
	}
	return nil
}

func addWorkload(sc *Scenario, topo *Topology, addr *Addressing, orch *Orchestrator) error {
	bp := DefaultBulkParams(sc.Stop)
	bp.MaxBytes = sc.MaxBytes
	bp.SendSize = sc.SendSize

	switch sc.Kind {
	case KindEcho:
		return addEchoWorkload(sc, topo, addr, orch)
	case KindDual:
		_, err := orch.AddBulkFlows(topo.Source(), topo.Destinations(), bp)
		return err
	}

	dsts := topo.Destinations()
	if topo.Shape() == LinearChain {
		// a chain has one destination; extra flows share it on consecutive ports
		dsts = make([]*TopoNode, sc.NFlows)
		for idx := range dsts {
			dsts[idx] = topo.Destinations()[0]
		}
	}
	_, err := orch.AddBulkFlows(topo.Source(), dsts, bp)
	return err
}

func reportLines(sc *Scenario, res *Result) []string {
	switch sc.Kind {
	case KindEcho:
		return EchoLines(res.Flows)
	case KindDual:
		cfg := res.Topology.Config
		return []string{DualLine(res.Strategy, FormatSeconds(cfg.Branch[0].Delay),
			FormatSeconds(cfg.Branch[1].Delay), res.Goodput)}
	}
	nFlows := len(res.Goodput.Flows)
	switch sc.Report {
	case ReportFlows:
		return FlowLines(res.Goodput)
	case ReportErrorRate:
		return []string{AggregateLine(res.Strategy, nFlows, ReportErrorRate, fmtNum(sc.ErrorRate), res.Goodput)}
	}
	return []string{AggregateLine(res.Strategy, nFlows, ReportDelay,
		FormatSeconds(res.Topology.Config.Bottleneck.Delay), res.Goodput)}
}
