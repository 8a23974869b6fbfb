package scenario

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mzanella/gridforge/pkg/grid"
	"github.com/mzanella/gridforge/pkg/physics"
)

// Horizon constants for the time-series block.
const timePeriods = 18

// intervalDurations is the horizon layout in hours: quarter-hour periods
// through the morning, half-hour mid-day, hourly at the end.
var intervalDurations = []float64{
	0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25,
	0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 1, 1,
}

// Params sizes the dispatchable-device section of a generated document.
type Params struct {
	NumGenerators int
	NumLoads      int
}

// Decoder maps one corrected scenario tensor row into a Document.
// It reads only the topology's immutable state and is safe for concurrent
// use.
type Decoder struct {
	topo *grid.Topology
	band physics.Band
}

// NewDecoder builds a decoder sharing the same voltage band as the
// correction layers.
func NewDecoder(topo *grid.Topology, band physics.Band) *Decoder {
	return &Decoder{topo: topo, band: band}
}

// Decode maps row i of a corrected tensor (and its flow tensor) into a
// document with the given id. Extra tensor columns beyond the voltage/angle
// prefix feed the device dispatch points; when there are more devices than
// extra columns the remainder fall back to nominal dispatch values.
func (d *Decoder) Decode(id string, x, flows *mat.Dense, i int, prm Params) (*Document, error) {
	rows, cols := x.Dims()
	n := d.topo.NumBuses()
	if i < 0 || i >= rows {
		return nil, fmt.Errorf("decode: row %d out of range [0, %d)", i, rows)
	}
	if cols < 2*n {
		return nil, fmt.Errorf("decode: %d columns for %d buses: %w", cols, n, physics.ErrLayout)
	}

	row := x.RawRowView(i)
	extras := row[2*n:]

	doc := &Document{
		ID: id,
		Network: Network{
			General: General{BaseNormMVA: 100},
		},
		TimeSeriesInput: TimeSeriesInput{
			General: TimeSeriesGeneral{
				TimePeriods:      timePeriods,
				IntervalDuration: intervalDurations,
			},
		},
	}

	for _, bus := range d.topo.Buses() {
		doc.Network.Bus = append(doc.Network.Bus, BusDoc{
			UID:         bus.UID,
			BaseNomVolt: bus.BaseKV,
			VmLb:        d.band.VMin,
			VmUb:        d.band.VMax,
			InitialStatus: BusInitialStatus{
				Vm: row[bus.Index],
				Va: row[n+bus.Index],
			},
		})
	}

	for _, line := range d.topo.Lines() {
		var p float64
		if flows != nil {
			p = flows.At(i, line.Index)
		}
		doc.Network.ACLine = append(doc.Network.ACLine, LineDoc{
			UID:      line.UID,
			FrBus:    line.FromBus,
			ToBus:    line.ToBus,
			R:        line.Resistance,
			X:        line.Reactance,
			MvaUbNom: line.ThermalLimitMVA,
			InitialStatus: LineInitialStatus{
				OnStatus: 1,
				P:        p,
			},
		})
	}

	buses := d.topo.Buses()
	for g := 0; g < prm.NumGenerators; g++ {
		uid := fmt.Sprintf("sd_%d", g)
		dispatch := 0.2 + float64(g)*0.05
		if g < len(extras) {
			dispatch = math.Abs(extras[g])
		}
		doc.Network.SimpleDispatchableDevice = append(doc.Network.SimpleDispatchableDevice, Device{
			UID:        uid,
			Bus:        buses[g%len(buses)].UID,
			DeviceType: DeviceProducer,
			InitialStatus: DeviceInitialStatus{
				OnStatus: 1,
				P:        dispatch,
			},
		})
		doc.TimeSeriesInput.SimpleDispatchableDevice = append(doc.TimeSeriesInput.SimpleDispatchableDevice,
			flatProfile(uid, dispatch))
	}

	for l := 0; l < prm.NumLoads; l++ {
		idx := prm.NumGenerators + l
		uid := fmt.Sprintf("sd_%d", idx)
		dispatch := 0.275
		if idx < len(extras) {
			dispatch = math.Abs(extras[idx])
		}
		doc.Network.SimpleDispatchableDevice = append(doc.Network.SimpleDispatchableDevice, Device{
			UID:        uid,
			Bus:        buses[idx%len(buses)].UID,
			DeviceType: DeviceConsumer,
			InitialStatus: DeviceInitialStatus{
				OnStatus: 1,
				P:        dispatch,
				Q:        dispatch * 0.033,
			},
		})
		doc.TimeSeriesInput.SimpleDispatchableDevice = append(doc.TimeSeriesInput.SimpleDispatchableDevice,
			loadProfile(uid, dispatch))
	}

	return doc, nil
}

// flatProfile bounds a producer between zero and roughly twice its dispatch
// point for every period.
func flatProfile(uid string, p float64) DeviceTimeSeries {
	ts := DeviceTimeSeries{UID: uid, PLb: make([]float64, timePeriods), PUb: make([]float64, timePeriods)}
	for t := 0; t < timePeriods; t++ {
		ts.PUb[t] = 2 * p
	}
	return ts
}

// loadProfile shapes a consumer's bounds with a typical daily curve: low
// early morning, a morning ramp, mid-day peak, and an evening peak that
// tails off.
func loadProfile(uid string, p float64) DeviceTimeSeries {
	ts := DeviceTimeSeries{UID: uid, PLb: make([]float64, timePeriods), PUb: make([]float64, timePeriods)}
	for t := 0; t < timePeriods; t++ {
		var shape float64
		switch {
		case t < 4:
			shape = 0.80 + float64(t)*0.03
		case t < 8:
			shape = 0.90 + float64(t-4)*0.06
		case t < 12:
			shape = 1.20 - float64(t-8)*0.02
		case t < 16:
			shape = 1.16 + float64(t-12)*0.05
		default:
			shape = 1.35 - float64(t-16)*0.10
		}
		ts.PLb[t] = 0.1 * p * shape
		ts.PUb[t] = p * shape
	}
	return ts
}
