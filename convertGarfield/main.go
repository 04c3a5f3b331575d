package main

import (
	"flag"
	"fmt"
	"os"

	sigproc "github.com/wirecell/sigproc_go/pkg"
)

var logger sigproc.SlogLogger

func init() {
	logger = sigproc.NewSlogLogger(os.Stdout, os.Stderr)
	sigproc.SetLogger(logger)
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	configuration, err := sigproc.SetupConfiguration(*configFilename)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	if err := convert(configuration); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func convert(configuration sigproc.Configuration) error {
	origin, err := sigproc.Evaluate(configuration.Origin)
	if err != nil {
		return err
	}
	speed, err := sigproc.Evaluate(configuration.Speed)
	if err != nil {
		return err
	}

	records, err := sigproc.LoadGarfield(configuration.FileIn, configuration.GarfieldOptions())
	if err != nil {
		return fmt.Errorf("error loading Garfield fileset %s: %w", configuration.FileIn, err)
	}
	fr, err := sigproc.RecordsToFieldResponse(records, origin, speed)
	if err != nil {
		return fmt.Errorf("error building field response: %w", err)
	}
	if configuration.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Writing %s", configuration.FileOut), "main")
	}
	return sigproc.Dump(configuration.FileOut, fr)
}
