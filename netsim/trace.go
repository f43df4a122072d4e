package netsim

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"

	"gopkg.in/yaml.v3"
)

// NameType is an entry in a dictionary created for a trace
// that maps node id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// PacketTrace records one packet event at one device
type PacketTrace struct {
	Time     string `json:"time" yaml:"time"`
	Device   int    `json:"device" yaml:"device"`
	Op       string `json:"op" yaml:"op"`
	PacketID uint64 `json:"packetid" yaml:"packetid"`
	Size     uint32 `json:"size" yaml:"size"`
	Desc     string `json:"desc" yaml:"desc"`
}

// TraceManager gathers packet events (enqueue, tx, rx and the two kinds of drop)
// over a run.  While it is not in use every method returns immediately, so the
// calls can stay embedded in the devices.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each node id
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// trace records, indexed by node id
	Traces map[int][]PacketTrace `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]PacketTrace)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddName adds an element to the id -> (name,type) dictionary
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.InUse {
		return
	}
	_, present := tm.NameByID[id]
	if present {
		panic(fmt.Errorf("duplicated id %d in AddName", id))
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// AddPacketEvent stores a record of op happening to pckt at dev
func (tm *TraceManager) AddPacketEvent(now float64, dev *Device, pckt *Packet, op string) {
	if !tm.InUse {
		return
	}
	nodeID := dev.node.id
	trc := PacketTrace{Time: strconv.FormatFloat(now, 'f', -1, 64), Device: dev.index, Op: op,
		PacketID: pckt.ID, Size: pckt.Size(), Desc: pckt.String()}
	tm.Traces[nodeID] = append(tm.Traces[nodeID], trc)
}

// Count returns the number of stored records
func (tm *TraceManager) Count() int {
	count := 0
	for _, trcs := range tm.Traces {
		count += len(trcs)
	}
	return count
}

// WriteToFile stores the TraceManager to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.InUse {
		return nil
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(*tm)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	default:
		return fmt.Errorf("packet trace file %s needs a .yaml or .json extension", filename)
	}
	if merr != nil {
		return merr
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	defer f.Close()
	_, werr := f.WriteString(string(bytes[:]))
	return werr
}
