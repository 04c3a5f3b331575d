//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

var executables = []string{
	"fr2arrays",
	"convertGarfield",
	"responseInfo",
	"frZero",
}

// Build compiles every executable into ./bin
func Build() error {
	mg.Deps(BuildFr2Arrays, BuildConvertGarfield, BuildResponseInfo, BuildFrZero)
	fmt.Println("Compilation finished")
	return nil
}

func BuildFr2Arrays() error {
	return buildExecutable("fr2arrays")
}

func BuildConvertGarfield() error {
	return buildExecutable("convertGarfield")
}

func BuildResponseInfo() error {
	return buildExecutable("responseInfo")
}

func BuildFrZero() error {
	return buildExecutable("frZero")
}

// Test runs the package tests. HDF5 needs CGO.
func Test() error {
	fmt.Println("Running tests...")
	cmd := exec.Command("go", "test", "./pkg/...")
	cmd.Env = cgoEnv()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Clean removes the built executables
func Clean() error {
	for _, name := range executables {
		if err := os.RemoveAll("./bin/" + name); err != nil {
			return err
		}
	}
	return nil
}

func buildExecutable(name string) error {
	fmt.Printf("Building %s executable...\n", name)
	cmd := exec.Command("go", "build", "-o", "./bin/"+name, "./"+name)
	cmd.Env = cgoEnv()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func cgoEnv() []string {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	return append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
}
