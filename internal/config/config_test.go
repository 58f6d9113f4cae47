package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tturner/enipcore/internal/cip/protocol"
	enipErrors "github.com/tturner/enipcore/internal/errors"
)

func u16(v uint16) *uint16 { return &v }

func u8(v uint8) *uint8 { return &v }

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Target: TargetConfig{IP: "10.0.0.5", Port: 44818},
			Requests: []Request{
				{Name: "serial", Service: ServiceGetAttributeSingle, Class: 0x01, Instance: 1, Attribute: u16(6)},
			},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing ip", mutate: func(c *Config) { c.Target.IP = "" }, wantErr: "target.ip"},
		{name: "bad port", mutate: func(c *Config) { c.Target.Port = 70000 }, wantErr: "target.port"},
		{name: "no requests", mutate: func(c *Config) { c.Requests = nil }, wantErr: "at least one request"},
		{name: "missing name", mutate: func(c *Config) { c.Requests[0].Name = "" }, wantErr: "name is required"},
		{name: "missing service", mutate: func(c *Config) { c.Requests[0].Service = "" }, wantErr: "service is required"},
		{name: "unknown service", mutate: func(c *Config) { c.Requests[0].Service = "read_tag" }, wantErr: "invalid service type"},
		{name: "single without attribute", mutate: func(c *Config) { c.Requests[0].Attribute = nil }, wantErr: "attribute is required"},
		{
			name: "custom service without service code",
			mutate: func(c *Config) {
				c.Requests[0].Service = ServiceCustom
			},
			wantErr: "service_code is required",
		},
		{
			name: "custom service with reply bit",
			mutate: func(c *Config) {
				c.Requests[0].Service = ServiceCustom
				c.Requests[0].ServiceCode = 0x8E
			},
			wantErr: "reply bit",
		},
		{
			name: "set without data",
			mutate: func(c *Config) {
				c.Requests[0].Service = ServiceSetAttributeSingle
			},
			wantErr: "data_hex is required",
		},
		{name: "bad hex", mutate: func(c *Config) { c.Requests[0].DataHex = "zz" }, wantErr: "invalid hex"},
		{
			name: "duplicate names",
			mutate: func(c *Config) {
				c.Requests = append(c.Requests, c.Requests[0])
			},
			wantErr: "duplicate name",
		},
		{
			name: "two route forms",
			mutate: func(c *Config) {
				c.Route = RouteConfig{Path: "1,0", Slot: u8(0)}
			},
			wantErr: "only one of",
		},
		{name: "bad route", mutate: func(c *Config) { c.Route.Path = "1" }, wantErr: "route"},
		{name: "upload without jump host", mutate: func(c *Config) { c.Output.UploadDir = "runs" }, wantErr: "upload_dir"},
		{
			name: "upload with jump host",
			mutate: func(c *Config) {
				c.Target.Via = "ssh://ops@jump"
				c.Output.UploadDir = "runs"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateConfig() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ValidateConfig() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.yaml")
	content := `
target:
  ip: "10.0.0.5"
route:
  slot: 3
requests:
  - name: "serial"
    service: "get_attribute_single"
    class: 0x01
    instance: 1
    attribute: 6
  - name: "reset"
    service: "custom"
    service_code: 0x05
    class: 0x01
    instance: 1
    data_hex: "00"
    repeat: 2
output:
  metrics_csv: "run.csv"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Target.Port != 44818 || cfg.Target.TimeoutMs != 5000 {
		t.Errorf("defaults not applied: %+v", cfg.Target)
	}
	route, err := cfg.Route.Bytes()
	if err != nil || !bytes.Equal(route, []byte{0x01, 0x03}) {
		t.Errorf("route = % X, err = %v", route, err)
	}
	if len(cfg.Requests) != 2 {
		t.Fatalf("requests: got %d, want 2", len(cfg.Requests))
	}
	serial := cfg.Requests[0]
	if serial.Code() != 0x0E || serial.Path() != (protocol.CIPPath{Class: 1, Instance: 1, Attribute: 6, HasAttribute: true}) {
		t.Errorf("serial request = %v %+v", serial.Code(), serial.Path())
	}
	if serial.Repeat != 1 {
		t.Errorf("repeat default: got %d, want 1", serial.Repeat)
	}
	reset := cfg.Requests[1]
	data, _ := reset.Data()
	if reset.Code() != 0x05 || reset.Path().HasAttribute || !bytes.Equal(data, []byte{0x00}) || reset.Repeat != 2 {
		t.Errorf("reset request = %+v", reset)
	}
	if cfg.Output.MetricsCSV != "run.csv" {
		t.Errorf("output = %+v", cfg.Output)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	var ufe enipErrors.UserFriendlyError
	if !errors.As(err, &ufe) || !strings.Contains(ufe.Reason, "not found") {
		t.Fatalf("missing file error = %v", err)
	}

	unknown := filepath.Join(dir, "unknown.yaml")
	os.WriteFile(unknown, []byte("target:\n  ip: 1.2.3.4\n  bogus: 1\nrequests: []\n"), 0o644)
	if _, err := LoadConfig(unknown); err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("unknown field error = %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("target:\n  ip: 1.2.3.4\n"), 0o644)
	if _, err := LoadConfig(invalid); err == nil || !strings.Contains(err.Error(), "at least one request") {
		t.Fatalf("validation error = %v", err)
	}
}

func TestDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.yaml")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig failed: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig of default failed: %v", err)
	}
	if len(cfg.Requests) != 2 || cfg.Requests[0].Code() != 0x01 {
		t.Fatalf("default requests = %+v", cfg.Requests)
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"", nil},
		{"0102", []byte{1, 2}},
		{"0x0A0B", []byte{0x0A, 0x0B}},
		{"de ad:be ef", []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	}
	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if err != nil || !bytes.Equal(got, tt.want) {
			t.Errorf("ParseHex(%q) = % X, %v", tt.in, got, err)
		}
	}
	if _, err := ParseHex("123"); err == nil {
		t.Error("odd-length hex should fail")
	}
}

func TestRouteBytes(t *testing.T) {
	tests := []struct {
		name    string
		route   RouteConfig
		want    []byte
		wantErr bool
	}{
		{name: "none", route: RouteConfig{}},
		{name: "slot", route: RouteConfig{Slot: u8(0)}, want: []byte{0x01, 0x00}},
		{name: "path", route: RouteConfig{Path: "1,2"}, want: []byte{0x01, 0x02}},
		{name: "hex", route: RouteConfig{PathHex: "01 05"}, want: []byte{0x01, 0x05}},
		{name: "bad hex", route: RouteConfig{PathHex: "0"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.route.Bytes()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Bytes() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("Bytes() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestLoadServerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	os.WriteFile(path, []byte("listen: \"127.0.0.1:0\"\nslot: 2\nproduct_name: \"bench plc\"\n"), 0o644)

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:0" || cfg.Slot != 2 || cfg.ProductName != "bench plc" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SerialNumber != 0x00C0FFEE || cfg.IdleTimeoutMs != 60000 {
		t.Errorf("defaults lost: %+v", cfg)
	}

	long := filepath.Join(dir, "long.yaml")
	os.WriteFile(long, []byte("product_name: \""+strings.Repeat("x", 40)+"\"\n"), 0o644)
	if _, err := LoadServerConfig(long); err == nil {
		t.Error("expected error for long product name")
	}
}
