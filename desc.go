package routesim

// desc.go holds the serializable description of a simulation input: the
// routers, the weighted links between them, the timestamped topology
// changes applied during the run, and the data traffic to inject.  The
// structs here are built for serialization; the driver turns them into
// its run-time representation after validation.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// DefaultLinkDelay is the propagation delay, in seconds, of a link whose
// description does not give one.
const DefaultLinkDelay = 0.001

// change operations accepted in a ChangeDesc
const (
	ChangeAdd    = "add"
	ChangeRemove = "remove"
	ChangeCost   = "cost"
)

// RouterDesc declares one router
type RouterDesc struct {
	Name string `json:"name" yaml:"name"`
}

// LinkDesc declares a bidirectional link between two routers.  Cost must
// be positive; Delay defaults to DefaultLinkDelay when zero.
type LinkDesc struct {
	A     string  `json:"a" yaml:"a"`
	B     string  `json:"b" yaml:"b"`
	Cost  float64 `json:"cost" yaml:"cost"`
	Delay float64 `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// ChangeDesc declares one topology change applied at a given simulation
// time: a link addition, a link removal, or a cost change.
type ChangeDesc struct {
	Time  float64 `json:"time" yaml:"time"`
	Op    string  `json:"op" yaml:"op"`
	A     string  `json:"a" yaml:"a"`
	B     string  `json:"b" yaml:"b"`
	Cost  float64 `json:"cost,omitempty" yaml:"cost,omitempty"`
	Delay float64 `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// TrafficDesc declares one data packet injected at a given time
type TrafficDesc struct {
	Time    float64 `json:"time" yaml:"time"`
	Src     string  `json:"src" yaml:"src"`
	Dst     string  `json:"dst" yaml:"dst"`
	Payload string  `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// TopoCfg is the complete input description of one simulation run
type TopoCfg struct {
	Name    string        `json:"name" yaml:"name"`
	Routers []RouterDesc  `json:"routers" yaml:"routers"`
	Links   []LinkDesc    `json:"links" yaml:"links"`
	Changes []ChangeDesc  `json:"changes,omitempty" yaml:"changes,omitempty"`
	Traffic []TrafficDesc `json:"traffic,omitempty" yaml:"traffic,omitempty"`
}

// CreateTopoCfg is an initialization constructor
func CreateTopoCfg(name string) *TopoCfg {
	tc := new(TopoCfg)
	tc.Name = name
	tc.Routers = make([]RouterDesc, 0)
	tc.Links = make([]LinkDesc, 0)
	return tc
}

// AddRouter declares a router, once
func (tc *TopoCfg) AddRouter(name string) {
	for _, r := range tc.Routers {
		if r.Name == name {
			return
		}
	}
	tc.Routers = append(tc.Routers, RouterDesc{Name: name})
}

// AddLink declares a bidirectional link
func (tc *TopoCfg) AddLink(a, b string, cost, delay float64) {
	tc.Links = append(tc.Links, LinkDesc{A: a, B: b, Cost: cost, Delay: delay})
}

// AddChange appends a timestamped topology change
func (tc *TopoCfg) AddChange(at float64, op, a, b string, cost, delay float64) {
	tc.Changes = append(tc.Changes, ChangeDesc{Time: at, Op: op, A: a, B: b, Cost: cost, Delay: delay})
}

// AddTraffic appends a timestamped data packet injection
func (tc *TopoCfg) AddTraffic(at float64, src, dst, payload string) {
	tc.Traffic = append(tc.Traffic, TrafficDesc{Time: at, Src: src, Dst: dst, Payload: payload})
}

// ReadTopoCfg deserializes a byte slice holding a representation of a
// TopoCfg struct.  If the dict argument is empty the named file is read
// to acquire the bytes.  Deserialization from yaml or json is selected
// by the useYAML flag.
func ReadTopoCfg(filename string, useYAML bool, dict []byte) (*TopoCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := TopoCfg{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}
	return &example, nil
}

// ReadTopoCfgFile reads a topology description, choosing the codec from
// the file name extension, and validates it.
func ReadTopoCfgFile(filename string) (*TopoCfg, error) {
	ext := path.Ext(filename)
	useYAML := (ext == ".yaml") || (ext == ".yml")
	tc, err := ReadTopoCfg(filename, useYAML, nil)
	if err != nil {
		return nil, err
	}
	return tc, tc.Validate()
}

// WriteToFile stores the TopoCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension.
func (tc *TopoCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tc)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tc, "", "\t")
	}
	if merr != nil {
		return merr
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	_, werr := f.WriteString(string(bytes[:]))
	f.Close()
	return werr
}

// Validate checks the description for the malformations a router must
// never observe: duplicated router names, non-positive link costs,
// links, changes, or traffic referring to unknown routers, negative
// timestamps, and unrecognized change operations.  All problems found
// are reported together.
func (tc *TopoCfg) Validate() error {
	errList := []error{}

	names := make([]string, 0, len(tc.Routers))
	for _, r := range tc.Routers {
		if r.Name == "" {
			errList = append(errList, errors.New("router with empty name"))
			continue
		}
		if slices.Contains(names, r.Name) {
			errList = append(errList, fmt.Errorf("duplicated router name %s", r.Name))
			continue
		}
		names = append(names, r.Name)
	}

	known := func(n string) bool { return slices.Contains(names, n) }

	checkEndpoints := func(what, a, b string) {
		if !known(a) {
			errList = append(errList, fmt.Errorf("%s refers to unknown router %s", what, a))
		}
		if !known(b) {
			errList = append(errList, fmt.Errorf("%s refers to unknown router %s", what, b))
		}
		if a == b {
			errList = append(errList, fmt.Errorf("%s connects router %s to itself", what, a))
		}
	}

	for idx, lnk := range tc.Links {
		what := fmt.Sprintf("link %d (%s-%s)", idx, lnk.A, lnk.B)
		checkEndpoints(what, lnk.A, lnk.B)
		if lnk.Cost <= 0.0 {
			errList = append(errList, fmt.Errorf("%s has non-positive cost %g", what, lnk.Cost))
		}
		if lnk.Delay < 0.0 {
			errList = append(errList, fmt.Errorf("%s has negative delay %g", what, lnk.Delay))
		}
	}

	for idx, chg := range tc.Changes {
		what := fmt.Sprintf("change %d (%s %s-%s)", idx, chg.Op, chg.A, chg.B)
		checkEndpoints(what, chg.A, chg.B)
		if chg.Time < 0.0 {
			errList = append(errList, fmt.Errorf("%s has negative time %g", what, chg.Time))
		}
		switch chg.Op {
		case ChangeAdd, ChangeCost:
			if chg.Cost <= 0.0 {
				errList = append(errList, fmt.Errorf("%s has non-positive cost %g", what, chg.Cost))
			}
		case ChangeRemove:
		default:
			errList = append(errList, fmt.Errorf("%s has unrecognized op %q", what, chg.Op))
		}
	}

	for idx, trf := range tc.Traffic {
		what := fmt.Sprintf("traffic %d (%s->%s)", idx, trf.Src, trf.Dst)
		if !known(trf.Src) {
			errList = append(errList, fmt.Errorf("%s refers to unknown router %s", what, trf.Src))
		}
		if !known(trf.Dst) {
			errList = append(errList, fmt.Errorf("%s refers to unknown router %s", what, trf.Dst))
		}
		if trf.Time < 0.0 {
			errList = append(errList, fmt.Errorf("%s has negative time %g", what, trf.Time))
		}
	}

	return ReportErrs(errList)
}

// ReportErrs joins a list of accumulated errors into one, returning nil
// if none of them are set
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}
	return errors.New(strings.Join(errMsg, ","))
}
