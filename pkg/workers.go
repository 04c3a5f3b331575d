package sigproc

import (
	"fmt"
	"time"
)

// ConversionResult reports the outcome of one job of a batch.
type ConversionResult struct {
	Conversion Conversion
	Index      int
	Warnings   int
	Duration   time.Duration
	Err        error
}

// ConvertFunc builds the response arrays of one conversion. It runs on the
// worker goroutines and must not touch HDF5.
type ConvertFunc func(Conversion) (*ResponseArrays, error)

// WriteFunc stores the arrays of one conversion. RunConversions calls it
// from a single goroutine.
type WriteFunc func(Conversion, *ResponseArrays) error

type conversionJob struct {
	index      int
	conversion Conversion
}

type conversionOutput struct {
	result ConversionResult
	arrays *ResponseArrays
}

func worker(id int, convert ConvertFunc, jobs <-chan conversionJob, results chan<- conversionOutput) {
	for job := range jobs {
		if configuration.Verbosity > 1 {
			message := fmt.Sprintf("Worker %d processing %s", id, job.conversion.FileIn)
			logger.Info(message, "workers")
		}
		results <- runJob(id, convert, job)
	}
}

// runJob turns a panic in convert into an error so the rest of the batch
// keeps going.
func runJob(id int, convert ConvertFunc, job conversionJob) (output conversionOutput) {
	start := time.Now()
	output.result = ConversionResult{Conversion: job.conversion, Index: job.index}
	defer func() {
		if r := recover(); r != nil {
			errMessage := fmt.Errorf("worker %d recovered from panic converting %s: %v", id, job.conversion.FileIn, r)
			logger.Error(errMessage.Error())
			output.result.Err = errMessage
			output.arrays = nil
		}
		output.result.Duration = time.Since(start)
	}()
	output.arrays, output.result.Err = convert(job.conversion)
	if output.result.Err == nil && output.arrays == nil {
		output.result.Err = fmt.Errorf("no arrays built for %s", job.conversion.FileIn)
	}
	if output.arrays != nil {
		output.result.Warnings = len(output.arrays.Warnings)
	}
	return output
}

// writeResult runs write for a successful job and records its error.
func writeResult(write WriteFunc, output conversionOutput) (result ConversionResult) {
	result = output.result
	if result.Err != nil {
		return result
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("recovered from panic writing %s: %v", result.Conversion.FileOut, r)
			logger.Error(result.Err.Error())
		}
		result.Duration += time.Since(start)
	}()
	result.Err = write(result.Conversion, output.arrays)
	return result
}

// RunConversions builds the arrays of every conversion with numWorkers
// goroutines and writes them one at a time from the calling goroutine.
// Results are returned in input order; a failed conversion does not stop
// the others.
func RunConversions(conversions []Conversion, numWorkers int, convert ConvertFunc, write WriteFunc) []ConversionResult {
	if numWorkers < 1 {
		numWorkers = 1
	}
	jobs := make(chan conversionJob, numWorkers)
	results := make(chan conversionOutput, numWorkers)

	for w := 1; w <= numWorkers; w++ {
		go worker(w, convert, jobs, results)
	}
	go func() {
		for i, conversion := range conversions {
			jobs <- conversionJob{index: i, conversion: conversion}
		}
		close(jobs)
	}()

	ordered := make([]ConversionResult, len(conversions))
	for range conversions {
		output := <-results
		ordered[output.result.Index] = writeResult(write, output)
	}
	return ordered
}

// ConvertToArrays loads a field response file and builds its response
// arrays.
func ConvertToArrays(conversion Conversion, opts ArrayOptions) (*ResponseArrays, error) {
	fr, err := Load(conversion.FileIn)
	if err != nil {
		return nil, err
	}
	arrays, err := FieldResponseToArrays(fr, opts)
	if err != nil {
		return nil, fmt.Errorf("error building arrays from %s: %w", conversion.FileIn, err)
	}
	return arrays, nil
}

// ArchiveWriter returns a WriteFunc storing arrays in the HDF5 file named by
// the conversion output.
func ArchiveWriter(compressionLevel int) WriteFunc {
	return func(conversion Conversion, arrays *ResponseArrays) error {
		return WriteArraysFile(conversion.FileOut, arrays, compressionLevel)
	}
}
