package ui

import (
	"testing"

	"github.com/tturner/enipcore/internal/config"
)

func TestBuildWizardConfigDefaults(t *testing.T) {
	cfg, err := BuildWizardConfig(DefaultWizardOptions())
	if err != nil {
		t.Fatalf("BuildWizardConfig failed: %v", err)
	}
	if cfg.Target.IP != "127.0.0.1" || cfg.Target.Port != 44818 {
		t.Fatalf("target = %+v", cfg.Target)
	}
	req := cfg.Requests[0]
	if req.Code() != 0x0E || req.Path().Class != 0x01 || !req.Path().HasAttribute || req.Repeat != 1 {
		t.Fatalf("request = %+v", req)
	}
	if cfg.Route.Slot != nil {
		t.Fatalf("no route expected")
	}
}

func TestBuildWizardConfigCustomRouted(t *testing.T) {
	opts := DefaultWizardOptions()
	opts.Service = string(config.ServiceCustom)
	opts.ServiceCode = "0x4C"
	opts.Attribute = ""
	opts.Slot = "2"
	opts.Repeat = "5"
	cfg, err := BuildWizardConfig(opts)
	if err != nil {
		t.Fatalf("BuildWizardConfig failed: %v", err)
	}
	if cfg.Requests[0].Code() != 0x4C || cfg.Requests[0].Repeat != 5 {
		t.Fatalf("request = %+v", cfg.Requests[0])
	}
	route, err := cfg.Route.Bytes()
	if err != nil || len(route) != 2 || route[1] != 2 {
		t.Fatalf("route = %v, %v", route, err)
	}
}

func TestBuildWizardConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*WizardOptions)
	}{
		{"bad port", func(o *WizardOptions) { o.Port = "70000" }},
		{"bad class", func(o *WizardOptions) { o.Class = "zz" }},
		{"missing ip", func(o *WizardOptions) { o.IP = "" }},
		{"missing attribute", func(o *WizardOptions) { o.Attribute = "" }},
		{"set without data", func(o *WizardOptions) { o.Service = string(config.ServiceSetAttributeSingle) }},
		{"reply bit", func(o *WizardOptions) {
			o.Service = string(config.ServiceCustom)
			o.ServiceCode = "0x8E"
		}},
		{"slot too large", func(o *WizardOptions) { o.Slot = "300" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultWizardOptions()
			tt.modify(&opts)
			if _, err := BuildWizardConfig(opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBuildWizardFormHasGroups(t *testing.T) {
	opts := DefaultWizardOptions()
	if BuildWizardForm(&opts) == nil {
		t.Fatalf("BuildWizardForm returned nil")
	}
}
