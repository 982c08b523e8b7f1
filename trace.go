package routesim

// trace.go gathers a record of a simulation run: which control and data
// packets moved where, when forwarding tables changed, and which data
// packets were dropped.  Traces are serialized to yaml or json for
// post-run analysis.

import (
	"encoding/json"
	"os"
	"path"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceInst is one stored trace record: a time, a record type, and the
// serialized record body.
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is an entry in a dictionary created for a trace that maps
// object id numbers to a (name, type) pair.
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers information about an execution of a simulation
// run.  Records are grouped by the id of the packet they concern.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each object id
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, keyed by packet id
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the
// experiment and a flag indicating whether the trace manager is active.
// By testing this flag we can inhibit the activity of gathering a trace
// when we don't want it, while embedding calls to its methods everywhere
// we need them when it is.
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the trace manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace creates a record of the trace using its calling arguments and
// stores it under the given packet id
func (tm *TraceManager) AddTrace(vrt vrtime.Time, pktID int, trace TraceInst) {
	if !tm.InUse {
		return
	}
	_, present := tm.Traces[pktID]
	if !present {
		tm.Traces[pktID] = make([]TraceInst, 0)
	}
	tm.Traces[pktID] = append(tm.Traces[pktID], trace)
}

// AddName adds an element to the id -> (name, type) dictionary for the
// trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if tm.InUse {
		tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	}
}

// WriteToFile stores the gathered trace to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension.
func (tm *TraceManager) WriteToFile(filename string) bool {
	if !tm.InUse {
		return false
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	}
	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()
	return true
}

// RouteTrace saves information about one step in the life of a packet:
// a control packet leaving or arriving at a router, a data packet
// moving a hop, a drop, or a delivery.
type RouteTrace struct {
	Time    float64 `json:"time" yaml:"time"`
	Ticks   int64   `json:"ticks" yaml:"ticks"`
	PktID   int     `json:"pktid" yaml:"pktid"`
	ObjID   int     `json:"objid" yaml:"objid"`
	Op      string  `json:"op" yaml:"op"`
	PktType string  `json:"pkttype" yaml:"pkttype"`
	From    string  `json:"from,omitempty" yaml:"from,omitempty"`
	To      string  `json:"to,omitempty" yaml:"to,omitempty"`
}

// Serialize renders the record body for storage in a TraceInst
func (rt *RouteTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*rt)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddRouteTrace creates a record of a packet movement and stores it
func AddRouteTrace(tm *TraceManager, vrt vrtime.Time, pktID, objID int, op, pktType string, from, to RouterID) {
	if !tm.InUse {
		return
	}
	rt := new(RouteTrace)
	rt.Time = vrt.Seconds()
	rt.Ticks = vrt.Ticks()
	rt.PktID = pktID
	rt.ObjID = objID
	rt.Op = op
	rt.PktType = pktType
	rt.From = string(from)
	rt.To = string(to)

	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	trcInst := TraceInst{TraceTime: traceTime, TraceType: "route", TraceStr: rt.Serialize()}
	tm.AddTrace(vrt, pktID, trcInst)
}
