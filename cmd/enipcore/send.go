package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/cip/spec"
	"github.com/tturner/enipcore/internal/config"
	"github.com/tturner/enipcore/internal/enip"
	"github.com/tturner/enipcore/internal/errors"
	"github.com/tturner/enipcore/internal/ui"
)

type sendFlags struct {
	targetFlags
	service   string
	classID   string
	instance  string
	attribute string
	dataHex   string
	dryRun    bool
	copy      bool
}

func newSendCmd() *cobra.Command {
	flags := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a single CIP explicit message",
		Long: `Register a session, send one CIP request in a SendRRData exchange and
print the decoded reply. With --route or --slot the request is wrapped in an
Unconnected Send to the Connection Manager.`,
		Example: `  # Get_Attribute_Single (0x0E) for the Identity serial number
  enipcore send --ip 10.0.0.50 --service 0x0E --class 0x01 --instance 1 --attribute 6

  # Get_Attribute_All from a module in slot 2 of the backplane
  enipcore send --ip 10.0.0.50 --service 0x01 --class 0x01 --instance 1 --slot 2

  # Print the SendRRData frame without connecting
  enipcore send --ip 10.0.0.50 --service 0x0E --class 0x01 --instance 1 --attribute 1 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.ip == "" && !flags.dryRun {
				return missingFlagError(cmd, "--ip")
			}
			if flags.service == "" {
				return missingFlagError(cmd, "--service")
			}
			if flags.classID == "" {
				return missingFlagError(cmd, "--class")
			}
			if flags.instance == "" {
				return missingFlagError(cmd, "--instance")
			}
			return runSend(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.service, "service", "", "CIP service code, hex or decimal (required)")
	cmd.Flags().StringVar(&flags.classID, "class", "", "CIP class ID (required)")
	cmd.Flags().StringVar(&flags.instance, "instance", "", "CIP instance ID (required)")
	cmd.Flags().StringVar(&flags.attribute, "attribute", "", "CIP attribute ID (omit for instance-level services)")
	cmd.Flags().StringVar(&flags.dataHex, "data-hex", "", "Request data as hex")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the encoded frame and exit")
	cmd.Flags().BoolVar(&flags.copy, "copy", false, "With --dry-run, also copy the frame hex to the clipboard")
	addTargetFlags(cmd, &flags.targetFlags)
	return cmd
}

type sendRequest struct {
	service protocol.CIPServiceCode
	path    protocol.CIPPath
	data    []byte
}

func (f *sendFlags) request() (sendRequest, error) {
	var req sendRequest
	service, err := parseUint(f.service, 8)
	if err != nil {
		return req, fmt.Errorf("parse service: %w", err)
	}
	if protocol.CIPServiceCode(service).IsReply() {
		return req, fmt.Errorf("service 0x%02X has the reply bit set", service)
	}
	class, err := parseUint(f.classID, 16)
	if err != nil {
		return req, fmt.Errorf("parse class: %w", err)
	}
	instance, err := parseUint(f.instance, 16)
	if err != nil {
		return req, fmt.Errorf("parse instance: %w", err)
	}
	req.service = protocol.CIPServiceCode(service)
	req.path = protocol.CIPPath{Class: uint16(class), Instance: uint16(instance)}
	if f.attribute != "" {
		attr, err := parseUint(f.attribute, 16)
		if err != nil {
			return req, fmt.Errorf("parse attribute: %w", err)
		}
		req.path.Attribute = uint16(attr)
		req.path.HasAttribute = true
	}
	if req.data, err = config.ParseHex(f.dataHex); err != nil {
		return req, fmt.Errorf("parse data: %w", err)
	}
	return req, nil
}

// encodeRequestFrame builds the SendRRData frame a session would send, using
// session handle 0 and sender context 0.
func encodeRequestFrame(req sendRequest, route []byte) ([]byte, error) {
	epath := protocol.EncodeEPATH(req.path)
	var rr enip.SendRRData
	var err error
	if len(route) > 0 {
		rr, err = enip.NewSendRRData(req.service, route, epath, req.data)
	} else {
		var mr protocol.MessageRouterRequest
		if mr, err = protocol.NewMessageRouterRequest(req.service, epath, req.data); err != nil {
			return nil, err
		}
		rr, err = enip.NewDirectSendRRData(mr)
	}
	if err != nil {
		return nil, err
	}
	return enip.BuildSendRRData(0, 0, rr)
}

func runSend(cmd *cobra.Command, flags *sendFlags) error {
	req, err := flags.request()
	if err != nil {
		return err
	}
	route, err := flags.routeBytes()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	name := fmt.Sprintf("%s %s", spec.ServiceName(req.service), req.path)

	if flags.dryRun {
		frame, err := encodeRequestFrame(req, route)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n%s\n", titleStyle.Render(name), hexBytes(frame))
		if flags.copy {
			if err := ui.CopyToClipboard(hex.EncodeToString(frame)); err != nil {
				return fmt.Errorf("copy to clipboard: %w", err)
			}
			fmt.Fprintln(out, dimStyle.Render("copied to clipboard"))
		}
		return nil
	}

	logger, err := flags.logger()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := commandContext(cmd)
	live, err := openSession(ctx, sessionSetup{Target: flags.target(), Route: route, Logger: logger, PCAP: flags.pcap})
	if err != nil {
		return err
	}
	defer live.Close(ctx)

	resp, rtt, err := live.send(ctx, req.service, req.path, req.data)
	if err != nil {
		return errors.WrapCIPError(err, name)
	}
	fmt.Fprintln(out, renderReply(name, resp, rtt))
	if err := resp.Err(); err != nil {
		return errors.WrapCIPError(err, name)
	}
	return nil
}
