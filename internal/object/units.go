package object

// Engineering-units enumeration. The database stores unit names; the
// protocol layer serves the enumerated code. The table covers the units
// seen in building automation deployments; unknown names fall back to
// noUnits.
var unitsCodes = map[string]uint32{
	// electrical
	"milliamperes":        2,
	"amperes":             3,
	"ohms":                4,
	"volts":               5,
	"kilovolts":           6,
	"megavolts":           7,
	"voltAmperes":         8,
	"kilovoltAmperes":     9,
	"megavoltAmperes":     10,
	"voltAmperesReactive": 11,
	"degreesPhase":        14,
	"powerFactor":         15,

	// energy
	"joules":        16,
	"kilojoules":    17,
	"wattHours":     18,
	"kilowattHours": 19,
	"btus":          20,
	"therms":        21,
	"tonHours":      22,

	// enthalpy and humidity
	"joulesPerKilogramDryAir":       23,
	"btusPerPoundDryAir":            24,
	"cyclesPerHour":                 25,
	"cyclesPerMinute":               26,
	"hertz":                         27,
	"gramsOfWaterPerKilogramDryAir": 28,
	"percentRelativeHumidity":       29,

	// length and area
	"squareMeters": 0,
	"squareFeet":   1,
	"millimeters":  30,
	"meters":       31,
	"inches":       32,
	"feet":         33,
	"kilometers":   193,

	// light
	"wattsPerSquareFoot":  34,
	"wattsPerSquareMeter": 35,
	"lumens":              36,
	"luxes":               37,
	"footCandles":         38,

	// mass and mass flow
	"kilograms":           39,
	"poundsMass":          40,
	"tons":                41,
	"kilogramsPerSecond":  42,
	"kilogramsPerMinute":  43,
	"kilogramsPerHour":    44,
	"poundsMassPerMinute": 45,
	"poundsMassPerHour":   46,
	"gramsPerSecond":      154,
	"gramsPerMinute":      155,

	// power
	"watts":             47,
	"kilowatts":         48,
	"megawatts":         49,
	"btusPerHour":       50,
	"horsepower":        51,
	"tonsRefrigeration": 52,

	// pressure
	"pascals":                  53,
	"kilopascals":              54,
	"bars":                     55,
	"poundsForcePerSquareInch": 56,
	"centimetersOfWater":       57,
	"inchesOfWater":            58,
	"millimetersOfMercury":     59,
	"centimetersOfMercury":     60,
	"inchesOfMercury":          61,

	// temperature
	"degreesCelsius":             62,
	"degreesKelvin":              63,
	"degreesFahrenheit":          64,
	"degreeDaysCelsius":          65,
	"degreeDaysFahrenheit":       66,
	"degreesCelsiusPerHour":      91,
	"degreesCelsiusPerMinute":    92,
	"degreesFahrenheitPerHour":   93,
	"degreesFahrenheitPerMinute": 94,

	// time
	"years":   67,
	"months":  68,
	"weeks":   69,
	"days":    70,
	"hours":   71,
	"minutes": 72,
	"seconds": 73,

	// velocity
	"metersPerSecond":   74,
	"kilometersPerHour": 75,
	"feetPerSecond":     76,
	"feetPerMinute":     77,
	"milesPerHour":      78,

	// volume and volumetric flow
	"cubicFeet":                79,
	"cubicMeters":              80,
	"imperialGallons":          81,
	"liters":                   82,
	"usGallons":                83,
	"cubicFeetPerMinute":       84,
	"cubicMetersPerSecond":     85,
	"imperialGallonsPerMinute": 86,
	"litersPerSecond":          87,
	"litersPerMinute":          88,
	"litersPerHour":            136,
	"usGallonsPerMinute":       89,

	// other
	"degreesAngular":          90,
	"noUnits":                 95,
	"partsPerMillion":         96,
	"partsPerBillion":         97,
	"percent":                 98,
	"percentPerSecond":        99,
	"perMinute":               100,
	"perSecond":               101,
	"psiPerDegreeFahrenheit":  102,
	"radians":                 103,
	"revolutionsPerMinute":    104,
	"currency1":               105,
	"microgramsPerCubicMeter": 219,
}

const unitsNoUnits uint32 = 95

// UnitsCode maps a stored unit name to its enumeration value. Unknown
// names report ok=false and the noUnits code.
func UnitsCode(name string) (uint32, bool) {
	if c, ok := unitsCodes[name]; ok {
		return c, true
	}
	return unitsNoUnits, false
}
