package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/gridflow/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

// redirect points *stream at a pipe drained in the background. The returned
// function restores the stream and yields everything written to it.
func redirect(t *testing.T, stream **os.File) func() string {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	saved := *stream
	*stream = w

	var buf strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(&buf, r)
	}()

	return func() string {
		_ = w.Close()
		<-done
		_ = r.Close()
		*stream = saved
		return buf.String()
	}
}

// runCLI runs the command line and returns its exit code, stdout and stderr.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	stdout := redirect(t, &os.Stdout)
	stderr := redirect(t, &os.Stderr)
	code := run(args)
	errOut := stderr()
	return code, stdout(), errOut
}

// writeEnv writes a config using a SQLite store and a stub discovery tool
// that reports a single RECO output module.
func writeEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	tool := filepath.Join(dir, "discover.sh")
	script := "#!/bin/sh\ncat > /dev/null\necho '{\"RECO\":{\"dataTier\":\"RECO\",\"filterName\":\"\"}}'\n"
	if err := os.WriteFile(tool, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	configYAML := `
service:
  log_level: error
store:
  backend: sqlite
  path: ` + filepath.Join(dir, "data", "wmbs.db") + `
discovery:
  command: ` + tool + `
  timeout: 30s
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "frobnicate")
	if code != 1 || !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Fatalf("code = %d, stderr = %s", code, stderr)
	}
}

func TestUnknownAction(t *testing.T) {
	code, _, stderr := runCLI(t, "location", "destroy")
	if code != 1 || !strings.Contains(stderr, "Unknown location action: destroy") {
		t.Fatalf("code = %d, stderr = %s", code, stderr)
	}
}

func TestWorkloadCompileAndRegister(t *testing.T) {
	configPath := writeEnv(t)
	dir := filepath.Dir(configPath)

	requestPath := filepath.Join(dir, "request.yaml")
	request := `
AcquisitionEra: Run1
Requestor: alice
InputDataset: /MinimumBias/Run2010A-v1/RAW
CMSSWVersion: CMSSW_3_8_4
ScramArch: slc5_amd64_gcc434
ProcessingVersion: v1
GlobalTag: GR_R_38X_V13::All
CmsPath: /cvmfs/cms
Scenario: cosmics
`
	if err := os.WriteFile(requestPath, []byte(request), 0644); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(dir, "wl.yaml")

	code, _, stderr := runCLI(t, "workload", "compile",
		"--config", configPath, "--request", requestPath, "--name", "wl", "--out", outPath, "--register")
	if code != 0 {
		t.Fatalf("compile code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "Fingerprint: blake3:") {
		t.Fatalf("stderr missing fingerprint: %s", stderr)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("workload not written: %v", err)
	}
	for _, want := range []string{"name: MergeRECO", "name: CleanupUnmergedRECO", "name: LogCollect"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("workload missing %q:\n%s", want, out)
		}
	}

	code, stdout, stderr := runCLI(t, "subscription", "resolve",
		"--config", configPath, "--fileset", "/MinimumBias/Run2010A-v1/RAW", "--workflow", "/wl/ReReco")
	if code != 0 || strings.TrimSpace(stdout) == "" {
		t.Fatalf("resolve code = %d, stdout = %q, stderr: %s", code, stdout, stderr)
	}

	code, _, _ = runCLI(t, "subscription", "resolve",
		"--config", configPath, "--fileset", "/MinimumBias/Run2010A-v1/RAW", "--workflow", "/wl/Other")
	if code != 1 {
		t.Fatalf("resolve of unknown workflow code = %d, want 1", code)
	}

	code, stdout, stderr = runCLI(t, "logdb", "show", "--config", configPath, "--request", "wl")
	if code != 0 || !strings.Contains(stdout, "compiled") {
		t.Fatalf("logdb show code = %d, stdout = %q, stderr: %s", code, stdout, stderr)
	}
}

func TestWorkloadCompileRequiresFlags(t *testing.T) {
	code, _, stderr := runCLI(t, "workload", "compile", "--name", "wl")
	if code != 1 || !strings.Contains(stderr, "--request and --name are required") {
		t.Fatalf("code = %d, stderr = %s", code, stderr)
	}
}

func TestLocationRegisterKeepsFirstSlots(t *testing.T) {
	configPath := writeEnv(t)

	for _, slots := range []string{"100", "5"} {
		code, _, stderr := runCLI(t, "location", "register", "--config", configPath, "--site", "T1_US_FNAL", "--slots", slots)
		if code != 0 {
			t.Fatalf("register code = %d, stderr: %s", code, stderr)
		}
	}

	code, stdout, stderr := runCLI(t, "location", "show", "--config", configPath, "--site", "T1_US_FNAL")
	if code != 0 {
		t.Fatalf("show code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "slots=100") {
		t.Fatalf("show stdout = %q, want slots=100", stdout)
	}

	code, _, _ = runCLI(t, "location", "show", "--config", configPath, "--site", "T2_CH_CERN")
	if code != 1 {
		t.Fatalf("show of unknown site code = %d, want 1", code)
	}
}

func TestConfigHashUpdateThenCheck(t *testing.T) {
	configPath := writeEnv(t)

	code, stdout, stderr := runCLI(t, "config", "hash-update", "--config", configPath, "--dry-run")
	if code != 0 || !strings.Contains(stdout, "HASH ") {
		t.Fatalf("dry run code = %d, stdout = %q, stderr: %s", code, stdout, stderr)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(configPath), ".checksums")); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote .checksums: %v", err)
	}

	code, _, stderr = runCLI(t, "config", "hash-update", "--config", configPath)
	if code != 0 {
		t.Fatalf("hash-update code = %d, stderr: %s", code, stderr)
	}

	code, stdout, stderr = runCLI(t, "config", "check", "--config", configPath)
	if code != 0 || !strings.Contains(stdout, "Fingerprint: blake3:") {
		t.Fatalf("check code = %d, stdout = %q, stderr: %s", code, stdout, stderr)
	}

	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("# edited\n")
	_ = f.Close()

	code, _, stderr = runCLI(t, "config", "check", "--config", configPath)
	if code != 1 || !strings.Contains(stderr, "hash mismatch") {
		t.Fatalf("check after edit code = %d, stderr: %s", code, stderr)
	}
}

func TestLogDBCleanup(t *testing.T) {
	configPath := writeEnv(t)
	code, stdout, stderr := runCLI(t, "logdb", "cleanup", "--config", configPath, "--age", "1h")
	if code != 0 || !strings.Contains(stdout, "Deleted 0 entries") {
		t.Fatalf("cleanup code = %d, stdout = %q, stderr: %s", code, stdout, stderr)
	}
}
