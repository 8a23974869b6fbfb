// Package scenario turns corrected scenario tensors into the grid scenario
// document consumed by downstream tooling (and ultimately by the external
// OpenDSS validator). Decoding is a mapping concern: all physics guarantees
// are established before a tensor reaches this package.
package scenario

// Document is the generated grid scenario in its external wire format.
// Field names follow the dataset schema the original scenarios use.
type Document struct {
	ID              string          `json:"id"`
	Network         Network         `json:"network"`
	TimeSeriesInput TimeSeriesInput `json:"time_series_input"`
}

// Network holds the static network description.
type Network struct {
	General                  General   `json:"general"`
	Bus                      []BusDoc  `json:"bus"`
	ACLine                   []LineDoc `json:"ac_line"`
	SimpleDispatchableDevice []Device  `json:"simple_dispatchable_device"`
}

// General holds network-wide constants.
type General struct {
	BaseNormMVA float64 `json:"base_norm_mva"`
}

// BusDoc is one bus with its decoded operating point.
type BusDoc struct {
	UID           string           `json:"uid"`
	BaseNomVolt   float64          `json:"base_nom_volt"`
	VmLb          float64          `json:"vm_lb"`
	VmUb          float64          `json:"vm_ub"`
	InitialStatus BusInitialStatus `json:"initial_status"`
}

// BusInitialStatus is the decoded voltage magnitude and angle.
type BusInitialStatus struct {
	Vm float64 `json:"vm"`
	Va float64 `json:"va"`
}

// LineDoc is one AC line with its parameters and decoded flow.
type LineDoc struct {
	UID           string            `json:"uid"`
	FrBus         string            `json:"fr_bus"`
	ToBus         string            `json:"to_bus"`
	R             float64           `json:"r"`
	X             float64           `json:"x"`
	MvaUbNom      float64           `json:"mva_ub_nom"`
	InitialStatus LineInitialStatus `json:"initial_status"`
}

// LineInitialStatus marks the line in service and records its DC flow.
type LineInitialStatus struct {
	OnStatus int     `json:"on_status"`
	P        float64 `json:"p"`
}

// Device types.
const (
	DeviceProducer = "producer"
	DeviceConsumer = "consumer"
)

// Device is one dispatchable device (generator or load).
type Device struct {
	UID           string              `json:"uid"`
	Bus           string              `json:"bus"`
	DeviceType    string              `json:"device_type"`
	InitialStatus DeviceInitialStatus `json:"initial_status"`
}

// DeviceInitialStatus is the decoded dispatch point.
type DeviceInitialStatus struct {
	OnStatus int     `json:"on_status"`
	P        float64 `json:"p"`
	Q        float64 `json:"q"`
}

// TimeSeriesInput holds per-period inputs for the scenario horizon.
type TimeSeriesInput struct {
	General                  TimeSeriesGeneral  `json:"general"`
	SimpleDispatchableDevice []DeviceTimeSeries `json:"simple_dispatchable_device"`
}

// TimeSeriesGeneral describes the scenario horizon.
type TimeSeriesGeneral struct {
	TimePeriods      int       `json:"time_periods"`
	IntervalDuration []float64 `json:"interval_duration"`
}

// DeviceTimeSeries bounds one device's dispatch over the horizon.
type DeviceTimeSeries struct {
	UID string    `json:"uid"`
	PLb []float64 `json:"p_lb"`
	PUb []float64 `json:"p_ub"`
}
