package ui

import (
	"github.com/charmbracelet/huh"

	"github.com/tturner/enipcore/internal/config"
)

// BuildWizardForm asks for one request; answers are written into opts.
func BuildWizardForm(opts *WizardOptions) *huh.Form {
	targetGroup := huh.NewGroup(
		huh.NewInput().
			Title("Target IP").
			Description("Device address.").
			Value(&opts.IP),
		huh.NewInput().
			Title("Port").
			Description("TCP port for EtherNet/IP (default 44818).").
			Value(&opts.Port),
		huh.NewInput().
			Title("Backplane slot (optional)").
			Description("Route through an Unconnected Send to this slot.").
			Value(&opts.Slot),
	)

	requestGroup := huh.NewGroup(
		huh.NewInput().
			Title("Request name").
			Value(&opts.Name),
		huh.NewSelect[string]().
			Title("Service").
			Options(
				huh.NewOption("Get_Attribute_Single", string(config.ServiceGetAttributeSingle)),
				huh.NewOption("Get_Attribute_All", string(config.ServiceGetAttributeAll)),
				huh.NewOption("Set_Attribute_Single", string(config.ServiceSetAttributeSingle)),
				huh.NewOption("Custom service code", string(config.ServiceCustom)),
			).
			Value(&opts.Service),
	)

	customGroup := huh.NewGroup(
		huh.NewInput().
			Title("Service code").
			Description("Request code in hex, e.g. 0x4C.").
			Value(&opts.ServiceCode),
	).WithHideFunc(func() bool { return opts.Service != string(config.ServiceCustom) })

	pathGroup := huh.NewGroup(
		huh.NewInput().
			Title("Class").
			Description("Class ID (hex or decimal).").
			Value(&opts.Class),
		huh.NewInput().
			Title("Instance").
			Value(&opts.Instance),
		huh.NewInput().
			Title("Attribute").
			Description("Leave empty for instance-level services.").
			Value(&opts.Attribute),
		huh.NewInput().
			Title("Data (hex)").
			Description("Request data, required for Set_Attribute_Single.").
			Value(&opts.DataHex),
		huh.NewInput().
			Title("Repeat").
			Value(&opts.Repeat),
	)

	return huh.NewForm(targetGroup, requestGroup, customGroup, pathGroup)
}
