package config

// Request file and server configuration for enipcore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/cip/spec"
	"github.com/tturner/enipcore/internal/errors"
)

// ServiceType names the service a request sends.
type ServiceType string

const (
	ServiceGetAttributeSingle ServiceType = "get_attribute_single"
	ServiceSetAttributeSingle ServiceType = "set_attribute_single"
	ServiceGetAttributeAll    ServiceType = "get_attribute_all"
	ServiceCustom             ServiceType = "custom"
)

// TargetConfig is the device a batch talks to.
type TargetConfig struct {
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// Via is a transport spec: empty for direct, or ssh://user@jump.
	Via string `yaml:"via,omitempty"`
}

// RouteConfig selects an Unconnected Send route. At most one field may be set.
type RouteConfig struct {
	Path    string `yaml:"path,omitempty"`     // "1,0" or "2,10.0.0.9/1,3"
	PathHex string `yaml:"path_hex,omitempty"` // raw route bytes
	Slot    *uint8 `yaml:"slot,omitempty"`     // backplane port 1 to this slot
}

// Request is one explicit message.
type Request struct {
	Name        string      `yaml:"name"`
	Service     ServiceType `yaml:"service"`
	ServiceCode uint8       `yaml:"service_code,omitempty"` // used for custom services
	Class       uint16      `yaml:"class"`
	Instance    uint16      `yaml:"instance"`
	Attribute   *uint16     `yaml:"attribute,omitempty"`
	DataHex     string      `yaml:"data_hex,omitempty"`
	// Repeat sends the request this many times; 0 means once.
	Repeat int `yaml:"repeat,omitempty"`
}

// OutputConfig names the artifacts a batch writes.
type OutputConfig struct {
	MetricsCSV  string `yaml:"metrics_csv,omitempty"`
	MetricsJSON string `yaml:"metrics_json,omitempty"`
	PCAP        string `yaml:"pcap,omitempty"`
	// RunDir receives run.json and summary.txt.
	RunDir string `yaml:"run_dir,omitempty"`
	// UploadDir copies artifacts to this directory on the ssh jump host.
	UploadDir string `yaml:"upload_dir,omitempty"`
}

// Config is a batch request file.
type Config struct {
	Target   TargetConfig `yaml:"target"`
	Route    RouteConfig  `yaml:"route,omitempty"`
	Requests []Request    `yaml:"requests"`
	Output   OutputConfig `yaml:"output,omitempty"`
}

// ServerConfig configures the simulated target.
type ServerConfig struct {
	Listen        string `yaml:"listen"`
	Slot          uint8  `yaml:"slot"`
	IdleTimeoutMs int    `yaml:"idle_timeout_ms"`
	VendorID      uint16 `yaml:"vendor_id"`
	DeviceType    uint16 `yaml:"device_type"`
	ProductCode   uint16 `yaml:"product_code"`
	RevisionMajor uint8  `yaml:"revision_major"`
	RevisionMinor uint8  `yaml:"revision_minor"`
	SerialNumber  uint32 `yaml:"serial_number"`
	ProductName   string `yaml:"product_name"`
}

// CreateDefaultConfig returns a request file that reads the Identity object.
func CreateDefaultConfig() *Config {
	serial := uint16(6)
	return &Config{
		Target: TargetConfig{IP: "127.0.0.1", Port: 44818, TimeoutMs: 5000},
		Requests: []Request{
			{Name: "identity", Service: ServiceGetAttributeAll, Class: spec.CIPClassIdentity, Instance: 1},
			{Name: "serial", Service: ServiceGetAttributeSingle, Class: spec.CIPClassIdentity, Instance: 1, Attribute: &serial},
		},
	}
}

// WriteDefaultConfig writes CreateDefaultConfig to path.
func WriteDefaultConfig(path string) error {
	return WriteConfig(path, CreateDefaultConfig())
}

// WriteConfig marshals cfg to YAML at path.
func WriteConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadConfig loads and validates a request file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// ParseConfig decodes YAML, applies defaults and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	applyDefaults(&cfg)
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Target.Port == 0 {
		cfg.Target.Port = 44818
	}
	if cfg.Target.TimeoutMs == 0 {
		cfg.Target.TimeoutMs = 5000
	}
	for i := range cfg.Requests {
		if cfg.Requests[i].Repeat == 0 {
			cfg.Requests[i].Repeat = 1
		}
	}
}

// ValidateConfig validates a request file.
func ValidateConfig(cfg *Config) error {
	if cfg.Target.IP == "" {
		return fmt.Errorf("target.ip is required")
	}
	if cfg.Target.Port < 0 || cfg.Target.Port > 65535 {
		return fmt.Errorf("target.port must be 1-65535")
	}
	if cfg.Target.TimeoutMs < 0 {
		return fmt.Errorf("target.timeout_ms must be >= 0")
	}
	if _, err := cfg.Route.Bytes(); err != nil {
		return fmt.Errorf("route: %w", err)
	}
	if len(cfg.Requests) == 0 {
		return fmt.Errorf("at least one request is required")
	}
	names := make(map[string]bool)
	for i, req := range cfg.Requests {
		if err := validateRequest(req, i); err != nil {
			return err
		}
		if names[req.Name] {
			return fmt.Errorf("requests[%d]: duplicate name %q", i, req.Name)
		}
		names[req.Name] = true
	}
	if cfg.Output.UploadDir != "" && !strings.HasPrefix(cfg.Target.Via, "ssh://") && !strings.Contains(cfg.Target.Via, "@") {
		return fmt.Errorf("output.upload_dir needs an ssh jump host in target.via")
	}
	return nil
}

func validateRequest(req Request, index int) error {
	if req.Name == "" {
		return fmt.Errorf("requests[%d]: name is required", index)
	}
	if req.Repeat < 0 {
		return fmt.Errorf("requests[%d]: repeat must be >= 0", index)
	}
	switch req.Service {
	case "":
		return fmt.Errorf("requests[%d]: service is required", index)
	case ServiceGetAttributeSingle, ServiceSetAttributeSingle:
		if req.Attribute == nil {
			return fmt.Errorf("requests[%d]: attribute is required for %s", index, req.Service)
		}
	case ServiceGetAttributeAll:
	case ServiceCustom:
		if req.ServiceCode == 0 {
			return fmt.Errorf("requests[%d]: service_code is required when service is 'custom'", index)
		}
		if req.ServiceCode&uint8(protocol.ReplyFlag) != 0 {
			return fmt.Errorf("requests[%d]: service_code 0x%02X has the reply bit set", index, req.ServiceCode)
		}
	default:
		return fmt.Errorf("requests[%d]: invalid service type '%s'", index, req.Service)
	}
	if req.Service == ServiceSetAttributeSingle && req.DataHex == "" {
		return fmt.Errorf("requests[%d]: data_hex is required for set_attribute_single", index)
	}
	if _, err := req.Data(); err != nil {
		return fmt.Errorf("requests[%d]: %w", index, err)
	}
	return nil
}

// Code returns the service code the request sends.
func (r Request) Code() protocol.CIPServiceCode {
	switch r.Service {
	case ServiceGetAttributeSingle:
		return spec.CIPServiceGetAttributeSingle
	case ServiceSetAttributeSingle:
		return spec.CIPServiceSetAttributeSingle
	case ServiceGetAttributeAll:
		return spec.CIPServiceGetAttributeAll
	default:
		return protocol.CIPServiceCode(r.ServiceCode)
	}
}

// Path returns the logical path the request is addressed to.
func (r Request) Path() protocol.CIPPath {
	path := protocol.CIPPath{Class: r.Class, Instance: r.Instance}
	if r.Attribute != nil {
		path.Attribute = *r.Attribute
		path.HasAttribute = true
	}
	return path
}

// Data decodes DataHex. Spaces, colons and a 0x prefix are accepted.
func (r Request) Data() ([]byte, error) {
	return ParseHex(r.DataHex)
}

// ParseHex decodes hex text such as "01 02", "0x0102" or "01:02".
func ParseHex(text string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(strings.TrimSpace(text))
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", text, err)
	}
	return data, nil
}

// Bytes returns the route path, or nil when no route is configured.
func (r RouteConfig) Bytes() ([]byte, error) {
	set := 0
	if r.Path != "" {
		set++
	}
	if r.PathHex != "" {
		set++
	}
	if r.Slot != nil {
		set++
	}
	switch {
	case set == 0:
		return nil, nil
	case set > 1:
		return nil, fmt.Errorf("only one of path, path_hex or slot may be set")
	case r.Slot != nil:
		return protocol.BackplaneRoute(*r.Slot), nil
	case r.Path != "":
		return protocol.ParseRoute(r.Path)
	default:
		route, err := ParseHex(r.PathHex)
		if err != nil {
			return nil, err
		}
		if len(route) == 0 || len(route) > 0xFF {
			return nil, fmt.Errorf("%w: %d bytes", protocol.ErrInvalidRoutePath, len(route))
		}
		return route, nil
	}
}

// CreateDefaultServerConfig mirrors the simulated target's built-in identity.
func CreateDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Listen:        ":44818",
		IdleTimeoutMs: 60000,
		VendorID:      0x0001,
		DeviceType:    0x000C,
		ProductCode:   0x0001,
		RevisionMajor: 1,
		RevisionMinor: 1,
		SerialNumber:  0x00C0FFEE,
		ProductName:   "enipcore target",
	}
}

// LoadServerConfig loads a server configuration; fields left out keep their
// defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("read server config: %w", err), path)
	}
	cfg := CreateDefaultServerConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// ValidateServerConfig validates a server configuration.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if cfg.IdleTimeoutMs < 0 {
		return fmt.Errorf("idle_timeout_ms must be >= 0")
	}
	if len(cfg.ProductName) > 32 {
		return fmt.Errorf("product_name must be at most 32 characters")
	}
	return nil
}
