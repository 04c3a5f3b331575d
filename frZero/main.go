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

	fr, err := sigproc.Load(configuration.FileIn)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	zeroed := sigproc.ZeroWires(fr, configuration.KeepWires)
	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Keeping wires within %d of the central one, writing %s", configuration.KeepWires, configuration.FileOut)
		logger.Info(message, "main")
	}
	if err := sigproc.Dump(configuration.FileOut, zeroed); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
