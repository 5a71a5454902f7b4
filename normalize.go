package solark

import (
	"fmt"
	"math"
)

// Normalize converts a merged raw record into the canonical reading. It is a
// total function over its input: missing or unparseable fields degrade to
// 0.0, the nine guaranteed keys are always present, and the input is never
// mutated. For each canonical key the preferred source field wins; computed
// fallbacks apply only when the preferred field is absent.
func Normalize(raw RawRecord) Reading {
	reading := Reading{}
	for _, key := range guaranteedKeys {
		reading[key] = 0.0
	}
	if raw == nil {
		return reading
	}

	reading[SensorEnergyToday] = firstFloat(raw, "energyToday", "etoday")
	reading[SensorEnergyTotal] = firstFloat(raw, "energyTotal", "etotal")

	// PV power: flow value when present, else derived from the per-string
	// voltage/current pairs that STROG / protocol-2 payloads report instead
	// of pre-computed power.
	if v, ok := raw["pvPower"]; ok {
		reading[SensorPVPower] = safeFloat(v)
	} else {
		var sum float64
		for i := 1; i <= 12; i++ {
			p := safeFloat(raw[fmt.Sprintf("volt%d", i)]) * safeFloat(raw[fmt.Sprintf("current%d", i)])
			if p != 0 {
				reading[fmt.Sprintf("pv_string_%d_power", i)] = p
				sum += p
			}
		}
		reading[SensorPVPower] = sum
	}

	if v, ok := raw["loadOrEpsPower"]; ok {
		reading[SensorLoadPower] = safeFloat(v)
	} else {
		pf := safeFloat(raw["pf"])
		if pf == 0 {
			pf = 1.0
		}
		reading[SensorLoadPower] = safeFloat(raw["inverterOutputVoltage"]) * safeFloat(raw["curCurrent"]) * pf
	}

	if v, ok := raw["battPower"]; ok {
		reading[SensorBattPower] = safeFloat(v)
	} else {
		reading[SensorBattPower] = safeFloat(raw["curVolt"]) * safeFloat(raw["chargeCurrent"])
	}

	if v, ok := raw["soc"]; ok {
		reading[SensorBattSOC] = safeFloat(v)
	} else if batteryCap := safeFloat(raw["batteryCap"]); batteryCap > 0 {
		reading[SensorBattSOC] = safeFloat(raw["curCap"]) / batteryCap * 100.0
	}

	meterA := safeFloat(raw["meterA"])
	meterB := safeFloat(raw["meterB"])
	meterC := safeFloat(raw["meterC"])
	gridNet := meterA + meterB + meterC

	if v, ok := raw["gridOrMeterPower"]; ok {
		reading[SensorGridPower] = safeFloat(v)
	} else if gridNet != 0 {
		reading[SensorGridPower] = gridNet
	}

	// Grid direction, ordered from most to least reliable signal: phase
	// meter sum, then flow direction flags, then pre-split import/export
	// fields taken at face value (that vendor field's sign convention is
	// assumed correct as-is).
	toGridV, toGridOK := raw["toGrid"]
	gridToV, gridToOK := raw["gridTo"]
	switch {
	case gridNet > 0:
		reading[SensorGridImport] = gridNet
	case gridNet < 0:
		reading[SensorGridExport] = -gridNet
	case boolFlag(toGridV, toGridOK) || boolFlag(gridToV, gridToOK):
		if v := safeFloat(raw["gridOrMeterPower"]); v != 0 {
			if boolFlag(toGridV, toGridOK) {
				reading[SensorGridExport] = math.Abs(v)
			} else {
				reading[SensorGridImport] = math.Abs(v)
			}
		}
	default:
		if v, ok := raw["gridImportPower"]; ok {
			reading[SensorGridImport] = safeFloat(v)
		}
		if v, ok := raw["gridExportPower"]; ok {
			reading[SensorGridExport] = safeFloat(v)
		}
	}

	// Supplemental raw values, emitted only when non-zero.
	supplemental := []struct{ key, field string }{
		{"battery_voltage", "chargeVolt"},
		{"battery_float_voltage", "floatVolt"},
		{"battery_capacity", "batteryCap"},
		{"battery_low_cap", "batteryLowCap"},
		{"battery_restart_cap", "batteryRestartCap"},
		{"battery_shutdown_cap", "batteryShutdownCap"},
		{"grid_peak_power", "gridPeakPower"},
		{"gen_peak_power", "genPeakPower"},
		{"pv_max_limit", "pvMaxLimit"},
		{"solar_max_sell_power", "solarMaxSellPower"},
		{"inverter_output_voltage", "inverterOutputVoltage"},
		{"inverter_output_current", "curCurrent"},
		{"battery_dc_voltage", "curVolt"},
		{"battery_current", "chargeCurrent"},
	}
	for _, s := range supplemental {
		if v := safeFloat(raw[s.field]); v != 0 {
			reading[s.key] = v
		}
	}
	if meterA != 0 || meterB != 0 || meterC != 0 {
		reading["grid_meter_a"] = meterA
		reading["grid_meter_b"] = meterB
		reading["grid_meter_c"] = meterC
	}

	return reading
}

// firstFloat coerces the first key present in the record, presence deciding
// the fallback rather than the value.
func firstFloat(raw RawRecord, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			return safeFloat(v)
		}
	}
	return 0.0
}
