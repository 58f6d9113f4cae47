package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/config"
	"github.com/tturner/enipcore/internal/enip"
	"github.com/tturner/enipcore/internal/server"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func startTarget(t *testing.T, slot uint8) int {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Slot = slot
	srv := server.New(cfg, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv.Addr().(*net.TCPAddr).Port
}

func TestParseUint(t *testing.T) {
	tests := []struct {
		input string
		bits  int
		want  uint64
		ok    bool
	}{
		{"0x0E", 8, 0x0E, true},
		{"14", 8, 14, true},
		{" 0x1234 ", 16, 0x1234, true},
		{"0x100", 8, 0, false},
		{"abc", 16, 0, false},
	}
	for _, tt := range tests {
		got, err := parseUint(tt.input, tt.bits)
		if tt.ok && (err != nil || got != tt.want) {
			t.Fatalf("parseUint(%q) = %d, %v; want %d", tt.input, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Fatalf("parseUint(%q) expected error", tt.input)
		}
	}
}

func TestSendDryRunPrintsFrame(t *testing.T) {
	out, err := runCLI(t, "send", "--service", "0x0E", "--class", "0x01", "--instance", "1", "--attribute", "6", "--dry-run")
	if err != nil {
		t.Fatalf("send --dry-run: %v", err)
	}
	// SendRRData header, then Get_Attribute_Single 20 01 24 01 30 06.
	for _, want := range []string{"6F 00", "0E 03 20 01 24 01 30 06", "Get_Attribute_Single"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dry-run output missing %q:\n%s", want, out)
		}
	}
}

func TestSendDryRunRouted(t *testing.T) {
	out, err := runCLI(t, "send", "--service", "0x0E", "--class", "1", "--instance", "1", "--attribute", "1", "--slot", "2", "--dry-run")
	if err != nil {
		t.Fatalf("send --dry-run --slot: %v", err)
	}
	// Unconnected Send to the Connection Manager.
	if !strings.Contains(out, "52 02 20 06 24 01") {
		t.Fatalf("routed frame missing Unconnected Send:\n%s", out)
	}
}

func TestSendRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"send", "--service", "0x8E", "--class", "1", "--instance", "1", "--dry-run"},
		{"send", "--service", "0x0E", "--class", "1", "--instance", "1", "--route", "1,0", "--slot", "1", "--dry-run"},
		{"send", "--service", "0x0E", "--instance", "1", "--dry-run"},
	}
	for _, args := range cases {
		if _, err := runCLI(t, args...); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestRegisterAgainstTarget(t *testing.T) {
	port := startTarget(t, 0)
	out, err := runCLI(t, "register", "--ip", "127.0.0.1", "--port", fmt.Sprint(port), "--log-level", "silent")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.Contains(out, "registered session 0x") || !strings.Contains(out, "unregistered") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRegisterUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	_, err = runCLI(t, "register", "--ip", "127.0.0.1", "--port", fmt.Sprint(port), "--log-level", "silent")
	if err == nil {
		t.Fatalf("expected an error for a closed port")
	}
}

func TestSendAgainstTarget(t *testing.T) {
	port := startTarget(t, 3)
	out, err := runCLI(t, "send", "--ip", "127.0.0.1", "--port", fmt.Sprint(port), "--log-level", "silent",
		"--service", "0x0E", "--class", "0x01", "--instance", "1", "--attribute", "6", "--slot", "3")
	if err != nil {
		t.Fatalf("send: %v\n%s", err, out)
	}
	// Default serial number 0x00C0FFEE, little endian.
	if !strings.Contains(out, "EE FF C0 00") || !strings.Contains(out, "Success") {
		t.Fatalf("unexpected reply:\n%s", out)
	}
}

func TestSendReportsCIPError(t *testing.T) {
	port := startTarget(t, 0)
	out, err := runCLI(t, "send", "--ip", "127.0.0.1", "--port", fmt.Sprint(port), "--log-level", "silent",
		"--service", "0x0E", "--class", "0x01", "--instance", "1", "--attribute", "99")
	if err == nil {
		t.Fatalf("expected CIP status error, output:\n%s", out)
	}
	if !strings.Contains(err.Error(), "CIP status") {
		t.Fatalf("error = %v", err)
	}
}

func TestBatchWritesArtifactsAndDecodes(t *testing.T) {
	port := startTarget(t, 0)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "metrics.csv")
	pcapPath := filepath.Join(dir, "session.pcap")
	runDir := filepath.Join(dir, "run")
	cfgPath := filepath.Join(dir, "requests.yaml")
	yaml := fmt.Sprintf(`target:
  ip: 127.0.0.1
  port: %d
  timeout_ms: 2000
requests:
  - name: identity
    service: get_attribute_all
    class: 1
    instance: 1
  - name: vendor
    service: get_attribute_single
    class: 1
    instance: 1
    attribute: 1
    repeat: 3
output:
  metrics_csv: %s
  pcap: %s
  run_dir: %s
`, port, csvPath, pcapPath, runDir)
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCLI(t, "batch", "--config", cfgPath, "--log-level", "silent")
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, out)
	}
	for _, want := range []string{"vendor #3", "Total Operations: 6"} {
		if !strings.Contains(out, want) {
			t.Fatalf("batch output missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	runJSON, err := os.ReadFile(filepath.Join(runDir, "run.json"))
	if err != nil {
		t.Fatalf("read run record: %v", err)
	}
	if !strings.Contains(string(runJSON), `"total_operations": 6`) {
		t.Fatalf("run.json:\n%s", runJSON)
	}

	// header + register + 4 sends + unregister
	if lines := strings.Count(strings.TrimSpace(string(data)), "\n") + 1; lines != 7 {
		t.Fatalf("metrics CSV has %d lines:\n%s", lines, data)
	}

	reportPath := filepath.Join(dir, "coverage.md")
	out, err = runCLI(t, "decode", "--pcap", pcapPath, "--port", fmt.Sprint(port), "--report", reportPath)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	md, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(md), "0x0E Get_Attribute_Single: 3 requests, 3 replies, 0 errors") {
		t.Fatalf("coverage report:\n%s", md)
	}
	for _, want := range []string{"RegisterSession", "SendRRData", "Get_Attribute_All", "UnRegisterSession"} {
		if !strings.Contains(out, want) {
			t.Fatalf("decode output missing %q:\n%s", want, out)
		}
	}
}

func TestBatchDryRun(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "requests.yaml")
	if err := config.WriteDefaultConfig(cfgPath); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	out, err := runCLI(t, "batch", "--config", cfgPath, "--dry-run")
	if err != nil {
		t.Fatalf("batch --dry-run: %v", err)
	}
	if !strings.Contains(out, "identity x1") || !strings.Contains(out, "via direct") {
		t.Fatalf("unexpected plan:\n%s", out)
	}
}

func TestDecodeHexRegisterSession(t *testing.T) {
	frame := hex.EncodeToString(enip.BuildRegisterSession(0x1122))
	out, err := runCLI(t, "decode", "--hex", frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out, "RegisterSession") || !strings.Contains(out, "protocol version 1") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestDecodeFlagsInvalidRequest(t *testing.T) {
	frame, err := encodeRequestFrame(sendRequest{service: 0x0E, path: protocol.CIPPath{Class: 1, Instance: 1}}, nil)
	if err != nil {
		t.Fatalf("encodeRequestFrame: %v", err)
	}
	out, err := runCLI(t, "decode", "--hex", hex.EncodeToString(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out, "invalid: Get_Attribute_Single requires an attribute ID") {
		t.Fatalf("missing validation warning:\n%s", out)
	}
}

func TestDecodeNeedsOneInput(t *testing.T) {
	if _, err := runCLI(t, "decode"); err == nil {
		t.Fatalf("expected error without input")
	}
	if _, err := runCLI(t, "decode", "--hex", "00", "--pcap", "x.pcap"); err == nil {
		t.Fatalf("expected error with both inputs")
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.yaml")
	if _, err := runCLI(t, "init", "--output", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := config.LoadConfig(path); err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if _, err := runCLI(t, "init", "--output", path); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := runCLI(t, "init", "--output", path, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestServeConfigLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.yaml")
	if err := os.WriteFile(path, []byte("listen: 127.0.0.1:1234\nslot: 4\nproduct_name: bench\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd := newServeCmd()
	if err := cmd.ParseFlags([]string{"--config", path, "--slot", "7"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	flags := &serveFlags{configPath: path, slot: 7, listen: ""}
	cfg, err := flags.serverConfig(cmd)
	if err != nil {
		t.Fatalf("serverConfig: %v", err)
	}
	if cfg.Listen != "127.0.0.1:1234" || cfg.Slot != 7 || cfg.ProductName != "bench" {
		t.Fatalf("config = %+v", cfg)
	}
	sc := toServerConfig(cfg)
	if sc.Identity.ProductName != "bench" || sc.Slot != 7 || sc.IdleTimeout.Seconds() != 60 {
		t.Fatalf("server config = %+v", sc)
	}
}

func TestBatchQuietShowsProgress(t *testing.T) {
	port := startTarget(t, 0)
	cfgPath := filepath.Join(t.TempDir(), "requests.yaml")
	yaml := fmt.Sprintf("target:\n  ip: 127.0.0.1\n  port: %d\nrequests:\n  - name: serial\n    service: get_attribute_single\n    class: 1\n    instance: 1\n    attribute: 6\n    repeat: 2\n", port)
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := runCLI(t, "batch", "--config", cfgPath, "--quiet", "--log-level", "silent")
	if err != nil {
		t.Fatalf("batch --quiet: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2/2 (100.0%)") || strings.Contains(out, "serial #1") {
		t.Fatalf("unexpected quiet output:\n%s", out)
	}
}
