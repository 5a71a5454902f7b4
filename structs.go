package solark

// RawRecord is the merged, schemaless payload of one fetch cycle. Different
// plants and firmware generations populate different key subsets.
type RawRecord map[string]any

// Reading is the canonical sensor-key to value mapping produced per cycle.
// The nine guaranteed keys are always present; supplemental keys (per-string
// PV power, meter phases, raw voltages) appear only when non-zero.
type Reading map[string]float64

// Canonical sensor keys.
const (
	SensorPVPower     = "pv_power"
	SensorLoadPower   = "load_power"
	SensorGridPower   = "grid_power"
	SensorGridImport  = "grid_import_power"
	SensorGridExport  = "grid_export_power"
	SensorBattPower   = "battery_power"
	SensorBattSOC     = "battery_soc"
	SensorEnergyToday = "energy_today"
	SensorEnergyTotal = "energy_total"
)

// guaranteedKeys are present in every Reading, defaulted to 0.0 when the
// source data carries nothing usable.
var guaranteedKeys = []string{
	SensorPVPower,
	SensorLoadPower,
	SensorGridPower,
	SensorGridImport,
	SensorGridExport,
	SensorBattPower,
	SensorBattSOC,
	SensorEnergyToday,
	SensorEnergyTotal,
}

// SensorDescriptor is static presentation metadata for one canonical key,
// enumerated once by the host at startup.
type SensorDescriptor struct {
	Key         string
	Name        string
	Unit        string
	DeviceClass string
}

// Sensors returns the descriptors for the guaranteed canonical keys.
func Sensors() []SensorDescriptor {
	return []SensorDescriptor{
		{Key: SensorPVPower, Name: "PV Power", Unit: "W", DeviceClass: "power"},
		{Key: SensorLoadPower, Name: "Load Power", Unit: "W", DeviceClass: "power"},
		{Key: SensorGridPower, Name: "Grid Power (net)", Unit: "W", DeviceClass: "power"},
		{Key: SensorGridImport, Name: "Grid Import Power", Unit: "W", DeviceClass: "power"},
		{Key: SensorGridExport, Name: "Grid Export Power", Unit: "W", DeviceClass: "power"},
		{Key: SensorBattPower, Name: "Battery Power", Unit: "W", DeviceClass: "power"},
		{Key: SensorBattSOC, Name: "Battery SOC", Unit: "%", DeviceClass: "battery"},
		{Key: SensorEnergyToday, Name: "Energy Today", Unit: "kWh", DeviceClass: "energy"},
		{Key: SensorEnergyTotal, Name: "Energy Total", Unit: "kWh", DeviceClass: "energy"},
	}
}

// AuthMode selects the login strategy.
type AuthMode string

const (
	// AuthModeAuto tries Strict first, then Legacy.
	AuthModeAuto AuthMode = "Auto"
	// AuthModeStrict sends the structured grant_type=password login.
	AuthModeStrict AuthMode = "Strict"
	// AuthModeLegacy sends the loosely-typed username/pwd login.
	AuthModeLegacy AuthMode = "Legacy"
)

// flowKeys is the allow-list of power-flow fields that overwrite live
// telemetry on merge. Flow values come from a more authoritative source for
// these specific fields.
var flowKeys = []string{
	"pvPower",
	"battPower",
	"gridOrMeterPower",
	"loadOrEpsPower",
	"soc",
	"toGrid",
	"gridTo",
}
