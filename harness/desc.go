package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// A NodeDesc is the serializable description of a topology node
type NodeDesc struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Role string `json:"role" yaml:"role"`

	// addresses in the order of the links the node belongs to
	Addrs []string `json:"addrs,omitempty" yaml:"addrs,omitempty"`
}

// A LinkDesc is the serializable description of a link.  Rate is in bits
// per second and Delay in seconds.
type LinkDesc struct {
	ID         int     `json:"id" yaml:"id"`
	EndptA     string  `json:"endptA" yaml:"endptA"`
	EndptB     string  `json:"endptB" yaml:"endptB"`
	Kind       string  `json:"kind" yaml:"kind"`
	Rate       float64 `json:"rate" yaml:"rate"`
	Delay      float64 `json:"delay" yaml:"delay"`
	Bottleneck bool    `json:"bottleneck,omitempty" yaml:"bottleneck,omitempty"`
	Subnet     string  `json:"subnet,omitempty" yaml:"subnet,omitempty"`
}

// TopoDesc is the serializable view of a built topology, written alongside
// experiment outputs so a run can be inspected without re-running it
type TopoDesc struct {
	Name  string     `json:"name" yaml:"name"`
	Shape string     `json:"shape" yaml:"shape"`
	Nodes []NodeDesc `json:"nodes" yaml:"nodes"`
	Links []LinkDesc `json:"links" yaml:"links"`
}

// Describe builds the TopoDesc of topo.  addr may be nil, in which case
// addresses and subnets are left out.
func Describe(name string, topo *Topology, addr *Addressing) *TopoDesc {
	td := &TopoDesc{Name: name, Shape: topo.Shape().String()}
	for _, tn := range topo.Nodes {
		nd := NodeDesc{ID: tn.ID, Name: tn.Name, Role: tn.Role.String()}
		if addr != nil {
			for _, link := range topo.LinksOf(tn) {
				if ip, ok := addr.AddressOn(link, tn); ok {
					nd.Addrs = append(nd.Addrs, ip.String())
				}
			}
		}
		td.Nodes = append(td.Nodes, nd)
	}
	for _, link := range topo.Links {
		ld := LinkDesc{ID: link.ID, EndptA: link.A.Name, EndptB: link.B.Name, Kind: link.Kind.String(),
			Rate: link.Params.Rate, Delay: link.Params.Delay, Bottleneck: link.Bottleneck}
		if addr != nil {
			ld.Subnet = addr.Subnets[link.ID].String()
		}
		td.Links = append(td.Links, ld)
	}
	return td
}

// NodeNames returns the names of the described nodes, sorted
func (td *TopoDesc) NodeNames() []string {
	names := make([]string, 0, len(td.Nodes))
	for _, nd := range td.Nodes {
		names = append(names, nd.Name)
	}
	slices.Sort(names)
	return names
}

// marshalByExt serializes obj to yaml or json, selected by the extension of filename
func marshalByExt(filename string, obj any) ([]byte, error) {
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		return yaml.Marshal(obj)
	case ".json", ".JSON":
		return json.MarshalIndent(obj, "", "\t")
	}
	return nil, fmt.Errorf("cannot tell the serialization of %s from its extension", filename)
}

// writeByExt serializes obj and writes it to filename
func writeByExt(filename string, obj any) error {
	bytes, err := marshalByExt(filename, obj)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// readBytes returns dict when it is not empty, and otherwise the contents of filename
func readBytes(filename string, dict []byte) ([]byte, error) {
	if len(dict) > 0 {
		return dict, nil
	}
	fileInfo, err := os.Stat(filename)
	if os.IsNotExist(err) || (err == nil && fileInfo.IsDir()) {
		return nil, fmt.Errorf("%s does not exist or cannot be read", filename)
	}
	return os.ReadFile(filename)
}

// WriteToFile stores the TopoDesc in the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (td *TopoDesc) WriteToFile(filename string) error {
	return writeByExt(filename, *td)
}

// ReadTopoDesc deserializes a slice of bytes into a TopoDesc.  If the slice is
// empty the file whose name is given is read instead.
func ReadTopoDesc(filename string, useYAML bool, dict []byte) (*TopoDesc, error) {
	dict, err := readBytes(filename, dict)
	if err != nil {
		return nil, err
	}
	td := TopoDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &td)
	} else {
		err = json.Unmarshal(dict, &td)
	}
	if err != nil {
		return nil, err
	}
	return &td, nil
}

// UseYAML reports whether the extension of filename names a yaml file
func UseYAML(filename string) bool {
	ext := path.Ext(filename)
	return ext == ".yaml" || ext == ".YAML" || ext == ".yml"
}

// ReportErrs transforms the non-nil errors of a list into a single error
// with a comma-separated report of all the constituent errors.  The first
// non-nil error stays reachable through errors.Is.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	var first error
	for _, err := range errs {
		if err != nil {
			if first == nil {
				first = err
			}
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}
	if len(errMsg) == 1 {
		return first
	}
	return fmt.Errorf("%w (and: %s)", first, strings.Join(errMsg[1:], ","))
}

// CheckDirectories probes the file system for the existence of every
// directory listed.  It returns an aggregated error if any check failed.
func CheckDirectories(dirs []string) (bool, error) {
	failures := []string{}
	for _, dir := range dirs {
		if len(dir) == 0 {
			continue
		}
		info, err := os.Stat(dir)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s not reachable", dir))
			continue
		}
		if !info.IsDir() {
			failures = append(failures, fmt.Sprintf("%s not a directory", dir))
		}
	}
	if len(failures) == 0 {
		return true, nil
	}
	return false, errors.New(strings.Join(failures, ","))
}

// OutputPath joins dir and name, leaving name alone when dir is empty
func OutputPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
