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

	for _, job := range configuration.Jobs() {
		fr, err := sigproc.Load(job.FileIn)
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		fmt.Print(sigproc.ResponseInfo(fr))
	}
}
