package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	sigproc "github.com/wirecell/sigproc_go/pkg"
)

var (
	logger         sigproc.SlogLogger
	VerbosityLevel int
)

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
	VerbosityLevel = configuration.Verbosity

	opts, err := configuration.ArrayOptions()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	start := time.Now()
	conversions := configuration.Jobs()
	convert := func(c sigproc.Conversion) (*sigproc.ResponseArrays, error) {
		return sigproc.ConvertToArrays(c, opts)
	}
	results := sigproc.RunConversions(conversions, configuration.NumWorkers, convert,
		sigproc.ArchiveWriter(configuration.CompressionLevel))

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			message := fmt.Errorf("error converting %s: %w", result.Conversion.FileIn, result.Err)
			logger.Error(message.Error())
			continue
		}
		if VerbosityLevel > 0 {
			message := fmt.Sprintf("Converted %s to %s in %v (%d warnings)",
				result.Conversion.FileIn, result.Conversion.FileOut, result.Duration.Round(time.Millisecond), result.Warnings)
			logger.Info(message, "main")
		}
	}
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("%d conversions, %d failed, total time %v", len(results), failed, time.Since(start).Round(time.Millisecond))
		logger.Info(message, "main")
	}
	if failed > 0 {
		os.Exit(1)
	}
}
