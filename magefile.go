//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	modulePath = "github.com/dkoosis/tally"
	binPath    = "./bin/tally"
	reportDir  = "./build/reports"
)

// Default target - build the binary
var Default = Build

// Build builds the tally binary with version information.
func Build() error {
	fmt.Println("Building tally...")
	return sh.RunV("go", "build", "-ldflags", ldflags(), "-o", binPath, "./cmd/tally")
}

// Clean removes build artifacts
func Clean() error {
	for _, dir := range []string{"./bin", "./build"} {
		if err := sh.Rm(dir); err != nil {
			return err
		}
	}
	return nil
}

// Install installs tally into GOPATH/bin.
func Install() error {
	return sh.RunV("go", "install", "-ldflags", ldflags(), "./cmd/tally")
}

// QA runs formatting, vet, lint and tests.
func QA() {
	mg.SerialDeps(Lint.Format, Lint.Vet, Lint.Golangci, Test.All)
}

// Lint namespace for linting commands
type Lint mg.Namespace

// Format fails when any file needs gofmt.
func (Lint) Format() error {
	out, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return err
	}
	if out != "" {
		return fmt.Errorf("files need formatting:\n%s", out)
	}
	return nil
}

// Vet runs go vet
func (Lint) Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Golangci runs golangci-lint when it is installed.
func (Lint) Golangci() error {
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		fmt.Println("golangci-lint not found, skipping")
		return nil
	}
	return sh.RunV("golangci-lint", "run", "--timeout=5m", "./...")
}

// Test namespace for testing commands
type Test mg.Namespace

// All runs all tests
func (Test) All() error {
	return sh.RunV("go", "test", "./...")
}

// Race runs tests with race detector
func (Test) Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Coverage runs tests with coverage
func (Test) Coverage() error {
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "test", "-coverprofile="+reportDir+"/coverage.out", "./...")
}

// Report runs the tests through tally itself and writes a JUnit report.
func (Test) Report() error {
	mg.Deps(Build)
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return err
	}
	gotest := exec.Command("go", "test", "-json", "./...")
	gotest.Stderr = os.Stderr
	tally := exec.Command(binPath, "-junit", reportDir+"/junit.xml", "-collector")
	tally.Stdout = os.Stdout
	tally.Stderr = os.Stderr

	pipe, err := gotest.StdoutPipe()
	if err != nil {
		return err
	}
	tally.Stdin = pipe
	if err := tally.Start(); err != nil {
		return err
	}
	testErr := gotest.Run()
	if err := tally.Wait(); err != nil {
		return fmt.Errorf("tally: %w", err)
	}
	return testErr
}

func ldflags() string {
	date := time.Now().UTC().Format(time.RFC3339)
	return fmt.Sprintf("-s -w -X '%[1]s/internal/version.Version=%[2]s' -X '%[1]s/internal/version.CommitHash=%[3]s' -X '%[1]s/internal/version.BuildDate=%[4]s'",
		modulePath, gitOutput("dev", "describe", "--tags", "--always", "--dirty", "--match=v*"),
		gitOutput("unknown", "rev-parse", "--short", "HEAD"), date)
}

func gitOutput(fallback string, args ...string) string {
	out, err := sh.Output("git", args...)
	if err != nil || strings.TrimSpace(out) == "" {
		return fallback
	}
	return strings.TrimSpace(out)
}
