package sigproc

import (
	"fmt"
	"math"
)

// Canonical system: millimeter, nanosecond, MeV and positron charge are 1.
// Every other symbol is a multiple of these.
const (
	Millimeter = 1.0
	Nanosecond = 1.0
	MeV        = 1.0
	Eplus      = 1.0

	Centimeter = 10 * Millimeter
	Meter      = 1000 * Millimeter
	Kilometer  = 1000 * Meter
	Micrometer = 1e-3 * Millimeter
	Nanometer  = 1e-6 * Millimeter

	Second      = 1e9 * Nanosecond
	Millisecond = 1e-3 * Second
	Microsecond = 1e-6 * Second
	Picosecond  = 1e-12 * Second

	Hertz     = 1.0 / Second
	Kilohertz = 1e3 * Hertz
	Megahertz = 1e6 * Hertz

	ElectronVolt = 1e-6 * MeV
	KeV          = 1e-3 * MeV
	GeV          = 1e3 * MeV

	ElementaryCharge = 1.602176634e-19 // coulomb
	Coulomb          = Eplus / ElementaryCharge
	Femtocoulomb     = 1e-15 * Coulomb
	Picocoulomb      = 1e-12 * Coulomb

	Megavolt  = MeV / Eplus
	Kilovolt  = 1e-3 * Megavolt
	Volt      = 1e-6 * Megavolt
	Millivolt = 1e-3 * Volt

	Ampere      = Coulomb / Second
	Milliampere = 1e-3 * Ampere
	Microampere = 1e-6 * Ampere
	Nanoampere  = 1e-9 * Ampere

	Ohm = Volt / Ampere
)

// unitTable is never written after package initialization, so it is safe to
// share between concurrent conversions.
var unitTable = map[string]float64{
	"millimeter": Millimeter, "mm": Millimeter,
	"centimeter": Centimeter, "cm": Centimeter,
	"meter": Meter, "m": Meter,
	"kilometer": Kilometer, "km": Kilometer,
	"micrometer": Micrometer, "um": Micrometer,
	"nanometer": Nanometer, "nm": Nanometer,

	"second": Second, "s": Second,
	"millisecond": Millisecond, "ms": Millisecond,
	"microsecond": Microsecond, "us": Microsecond,
	"nanosecond": Nanosecond, "ns": Nanosecond,
	"picosecond": Picosecond, "ps": Picosecond,

	"hertz": Hertz, "Hz": Hertz,
	"kilohertz": Kilohertz, "kHz": Kilohertz,
	"megahertz": Megahertz, "MHz": Megahertz,

	"megaelectronvolt": MeV, "MeV": MeV,
	"electronvolt": ElectronVolt, "eV": ElectronVolt,
	"kiloelectronvolt": KeV, "keV": KeV,
	"gigaelectronvolt": GeV, "GeV": GeV,

	"eplus": Eplus, "e_SI": ElementaryCharge,
	"coulomb": Coulomb, "C": Coulomb,
	"femtocoulomb": Femtocoulomb, "fC": Femtocoulomb,
	"picocoulomb": Picocoulomb, "pC": Picocoulomb,

	"megavolt": Megavolt, "kilovolt": Kilovolt, "kV": Kilovolt,
	"volt": Volt, "V": Volt,
	"millivolt": Millivolt, "mV": Millivolt,

	"ampere": Ampere, "A": Ampere,
	"milliampere": Milliampere, "mA": Milliampere,
	"microampere": Microampere, "uA": Microampere,
	"nanoampere": Nanoampere, "nA": Nanoampere,

	"ohm": Ohm,
	"pi":  math.Pi,
}

// Lookup returns the factor converting a value in the named unit into the
// canonical unit.
func Lookup(name string) (float64, error) {
	v, ok := unitTable[name]
	if !ok {
		return 0, &ConfigError{Expr: name, Err: fmt.Errorf("unknown unit symbol %q", name)}
	}
	return v, nil
}
