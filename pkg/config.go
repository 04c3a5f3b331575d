package sigproc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Conversion is one input/output pair of a batch run.
type Conversion struct {
	FileIn  string `json:"file_in" yaml:"file_in"`
	FileOut string `json:"file_out" yaml:"file_out"`
}

type Configuration struct {
	FileIn      string       `json:"file_in" yaml:"file_in"`
	FileOut     string       `json:"file_out" yaml:"file_out"`
	Conversions []Conversion `json:"conversions" yaml:"conversions"`
	Verbosity   int          `json:"verbosity" yaml:"verbosity"`
	NumWorkers  int          `json:"num_workers" yaml:"num_workers"`

	// Electronics, as unit expressions such as "14*mV/fC" and "2*us".
	Gain              string   `json:"gain" yaml:"gain"`
	Shaping           string   `json:"shaping" yaml:"shaping"`
	ElecType          ElecType `json:"elec_type" yaml:"elec_type"`
	SymmetryTolerance float64  `json:"symmetry_tolerance" yaml:"symmetry_tolerance"`
	CompressionLevel  int      `json:"compression_level" yaml:"compression_level"`

	// Conditions database. When NoDB is false, gain, shaping, electronics
	// type and zero wire locations are read for Detector and RunNumber.
	NoDB      bool   `json:"no_db" yaml:"no_db"`
	DBDriver  string `json:"db_driver" yaml:"db_driver"`
	Host      string `json:"host" yaml:"host"`
	User      string `json:"user" yaml:"user"`
	Passwd    string `json:"pass" yaml:"pass"`
	DBName    string `json:"dbname" yaml:"dbname"`
	Detector  string `json:"detector" yaml:"detector"`
	RunNumber int    `json:"run_number" yaml:"run_number"`

	// Garfield import.
	Origin        string    `json:"origin" yaml:"origin"`
	Speed         string    `json:"speed" yaml:"speed"`
	Normalization float64   `json:"normalization" yaml:"normalization"`
	ZeroWireLocs  []float64 `json:"zero_wire_locs" yaml:"zero_wire_locs"`
	Delay         int       `json:"delay" yaml:"delay"`

	// frZero keeps the paths of wires up to this index away from the
	// central one.
	KeepWires int `json:"keep_wires" yaml:"keep_wires"`
}

var configuration = DefaultConfiguration()

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}

func DefaultConfiguration() Configuration {
	return Configuration{
		Verbosity:         0,
		NumWorkers:        1,
		Gain:              "0",
		Shaping:           "0",
		ElecType:          ColdElectronics,
		SymmetryTolerance: 0.01,
		CompressionLevel:  4,
		NoDB:              true,
		DBDriver:          "mysql",
		Host:              "localhost",
		User:              "wcreader",
		Passwd:            "readonly",
		DBName:            "wirecell",
		Origin:            "10.0*cm",
		Speed:             "1.114*mm/us",
		ZeroWireLocs:      []float64{0, 0, 0},
		KeepWires:         0,
	}
}

// LoadConfiguration reads a JSON or, for .yaml and .yml files, a YAML
// configuration on top of the defaults.
func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, err
	}
	return config, nil
}

// Validate checks every expression and numeric setting, returning the
// first problem found as a ConfigError.
func (c Configuration) Validate() error {
	for _, expr := range []string{c.Gain, c.Shaping, c.Origin, c.Speed} {
		if _, err := Evaluate(expr); err != nil {
			return err
		}
	}
	switch {
	case c.NumWorkers < 1:
		return &ConfigError{Expr: fmt.Sprint(c.NumWorkers), Err: fmt.Errorf("num_workers must be at least 1")}
	case c.CompressionLevel < 0 || c.CompressionLevel > 9:
		return &ConfigError{Expr: fmt.Sprint(c.CompressionLevel), Err: fmt.Errorf("compression_level must be between 0 and 9")}
	case c.SymmetryTolerance < 0:
		return &ConfigError{Expr: fmt.Sprint(c.SymmetryTolerance), Err: fmt.Errorf("symmetry_tolerance cannot be negative")}
	case c.KeepWires < 0:
		return &ConfigError{Expr: fmt.Sprint(c.KeepWires), Err: fmt.Errorf("keep_wires cannot be negative")}
	case c.Delay < 0:
		return &ConfigError{Expr: fmt.Sprint(c.Delay), Err: fmt.Errorf("delay cannot be negative")}
	case !c.NoDB && c.Detector == "":
		return &ConfigError{Expr: "detector", Err: fmt.Errorf("a detector name is needed to read conditions from the database")}
	}
	return nil
}

// ArrayOptions evaluates the electronics settings in canonical units.
func (c Configuration) ArrayOptions() (ArrayOptions, error) {
	gain, err := Evaluate(c.Gain)
	if err != nil {
		return ArrayOptions{}, err
	}
	shaping, err := Evaluate(c.Shaping)
	if err != nil {
		return ArrayOptions{}, err
	}
	return ArrayOptions{
		Gain:              gain,
		Shaping:           shaping,
		ElecType:          c.ElecType,
		SymmetryTolerance: c.SymmetryTolerance,
		Verbosity:         c.Verbosity,
	}, nil
}

// GarfieldOptions collects the Garfield import settings.
func (c Configuration) GarfieldOptions() GarfieldOptions {
	return GarfieldOptions{
		Normalization: c.Normalization,
		ZeroWireLocs:  c.ZeroWireLocs,
		Delay:         c.Delay,
		Verbosity:     c.Verbosity,
	}
}

// Jobs lists the conversions of a run: the batch list when given,
// otherwise the single file_in/file_out pair.
func (c Configuration) Jobs() []Conversion {
	if len(c.Conversions) > 0 {
		return c.Conversions
	}
	return []Conversion{{FileIn: c.FileIn, FileOut: c.FileOut}}
}

func PrintConfiguration(config Configuration) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Batch conversions: %d", len(config.Conversions)), "config")
	logger.Info(fmt.Sprintf("Gain: %s", config.Gain), "config")
	logger.Info(fmt.Sprintf("Shaping: %s", config.Shaping), "config")
	logger.Info(fmt.Sprintf("Electronics type: %v", config.ElecType), "config")
	logger.Info(fmt.Sprintf("Symmetry tolerance: %g", config.SymmetryTolerance), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	if !config.NoDB {
		logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
		logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
		logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
		logger.Info(fmt.Sprintf("Detector: %s", config.Detector), "config")
		logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	}
	logger.Info(fmt.Sprintf("Origin: %s", config.Origin), "config")
	logger.Info(fmt.Sprintf("Speed: %s", config.Speed), "config")
	logger.Info(fmt.Sprintf("Normalization: %g", config.Normalization), "config")
	logger.Info(fmt.Sprintf("Zero wire locations: %v", config.ZeroWireLocs), "config")
	logger.Info(fmt.Sprintf("Delay: %d", config.Delay), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
}

// SetupConfiguration loads a configuration file, overlays the conditions
// database values when enabled and validates the result. The loaded
// configuration becomes the package configuration.
func SetupConfiguration(filename string) (Configuration, error) {
	config, err := LoadConfiguration(filename)
	if err != nil {
		return config, fmt.Errorf("error reading configuration file: %w", err)
	}
	SetConfiguration(config)
	if config.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Reading configuration file: %s", filename), "config")
	}

	if !config.NoDB {
		if config.Detector == "" {
			return config, config.Validate()
		}
		dbConn, err := ConnectToDatabase(config.DBDriver, config.User, config.Passwd, config.Host, config.DBName)
		if err != nil {
			return config, fmt.Errorf("error connecting to database: %w", err)
		}
		defer dbConn.Close()
		config, err = LoadConditions(dbConn, config)
		if err != nil {
			return config, err
		}
		SetConfiguration(config)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	if config.Verbosity > 0 {
		PrintConfiguration(config)
	}
	return config, nil
}
