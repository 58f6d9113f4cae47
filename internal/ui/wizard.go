// Package ui holds the interactive parts of the CLI: the request file
// wizard and clipboard export.
package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tturner/enipcore/internal/config"
)

// WizardOptions are the raw answers collected by the request wizard.
type WizardOptions struct {
	IP          string
	Port        string
	Slot        string
	Name        string
	Service     string
	ServiceCode string
	Class       string
	Instance    string
	Attribute   string
	DataHex     string
	Repeat      string
}

// DefaultWizardOptions prefills a read of the Identity vendor ID.
func DefaultWizardOptions() WizardOptions {
	return WizardOptions{
		IP:        "127.0.0.1",
		Port:      "44818",
		Name:      "vendor_id",
		Service:   string(config.ServiceGetAttributeSingle),
		Class:     "0x01",
		Instance:  "1",
		Attribute: "1",
		Repeat:    "1",
	}
}

// BuildWizardConfig turns wizard answers into a validated request file.
func BuildWizardConfig(opts WizardOptions) (*config.Config, error) {
	port, err := parseField("port", opts.Port, 16, 44818)
	if err != nil {
		return nil, err
	}
	class, err := parseField("class", opts.Class, 16, 0)
	if err != nil {
		return nil, err
	}
	instance, err := parseField("instance", opts.Instance, 16, 0)
	if err != nil {
		return nil, err
	}
	repeat, err := parseField("repeat", opts.Repeat, 16, 1)
	if err != nil {
		return nil, err
	}

	req := config.Request{
		Name:     strings.TrimSpace(opts.Name),
		Service:  config.ServiceType(strings.TrimSpace(opts.Service)),
		Class:    uint16(class),
		Instance: uint16(instance),
		DataHex:  strings.TrimSpace(opts.DataHex),
		Repeat:   int(repeat),
	}
	if strings.TrimSpace(opts.Attribute) != "" {
		attr, err := parseField("attribute", opts.Attribute, 16, 0)
		if err != nil {
			return nil, err
		}
		a := uint16(attr)
		req.Attribute = &a
	}
	if req.Service == config.ServiceCustom {
		code, err := parseField("service code", opts.ServiceCode, 8, 0)
		if err != nil {
			return nil, err
		}
		req.ServiceCode = uint8(code)
	}

	cfg := &config.Config{
		Target:   config.TargetConfig{IP: strings.TrimSpace(opts.IP), Port: int(port), TimeoutMs: 5000},
		Requests: []config.Request{req},
	}
	if strings.TrimSpace(opts.Slot) != "" {
		slot, err := parseField("slot", opts.Slot, 8, 0)
		if err != nil {
			return nil, err
		}
		s := uint8(slot)
		cfg.Route.Slot = &s
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseField(name, value string, bits int, fallback uint64) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(value, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q", name, value)
	}
	return n, nil
}
