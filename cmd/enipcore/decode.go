package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/enipcore/internal/capture"
	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/cip/spec"
	"github.com/tturner/enipcore/internal/config"
	"github.com/tturner/enipcore/internal/enip"
	"github.com/tturner/enipcore/internal/report"
)

type decodeFlags struct {
	hexInput string
	pcapPath string
	port     uint16
	reply    bool
	limit    int
	report   string
	jsonOut  string
}

func newDecodeCmd() *cobra.Command {
	flags := &decodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode encapsulation frames from hex or a pcap file",
		Long: `Decode EtherNet/IP encapsulation frames offline. SendRRData frames are
taken apart down to the CIP request or reply they carry, including the
request embedded in an Unconnected Send.

Frames read from a pcap are decoded as requests when sent to the target
port and as replies otherwise. Use --reply for hex input that is a reply.`,
		Example: `  enipcore decode --hex "6f00 1800 ..."
  enipcore decode --pcap session.pcap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if (flags.hexInput == "") == (flags.pcapPath == "") {
				return fmt.Errorf("exactly one of --hex or --pcap is required")
			}
			if flags.pcapPath == "" && (flags.report != "" || flags.jsonOut != "") {
				return fmt.Errorf("--report and --report-json need --pcap")
			}
			return runDecode(cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.hexInput, "hex", "", "One frame as hex (spaces and colons allowed)")
	cmd.Flags().StringVar(&flags.pcapPath, "pcap", "", "pcap file to read frames from")
	cmd.Flags().Uint16Var(&flags.port, "port", enip.Port, "Target port used to tell requests from replies in --pcap")
	cmd.Flags().BoolVar(&flags.reply, "reply", false, "Decode --hex input as a reply")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Stop after this many frames (0 = all)")
	cmd.Flags().StringVar(&flags.report, "report", "", "With --pcap, write a Markdown coverage report to this file")
	cmd.Flags().StringVar(&flags.jsonOut, "report-json", "", "With --pcap, write the coverage report as JSON")
	return cmd
}

func runDecode(out io.Writer, flags *decodeFlags) error {
	if flags.hexInput != "" {
		raw, err := config.ParseHex(flags.hexInput)
		if err != nil {
			return fmt.Errorf("parse --hex: %w", err)
		}
		return decodeFrame(out, raw, flags.reply)
	}

	frames, err := capture.ReadFile(flags.pcapPath, flags.port)
	if err != nil {
		return err
	}
	if err := writeCoverage(flags, frames); err != nil {
		return err
	}
	if len(frames) == 0 {
		fmt.Fprintf(out, "no encapsulation frames in %s\n", flags.pcapPath)
		return nil
	}
	for i, f := range frames {
		if flags.limit > 0 && i >= flags.limit {
			break
		}
		fmt.Fprintf(out, "%s %s %s -> %s\n", dimStyle.Render(fmt.Sprintf("#%d", i+1)),
			f.Timestamp.Format("15:04:05.000000"), f.Src, f.Dst)
		if err := decodeFrame(out, f.Raw, !f.ToTarget); err != nil {
			fmt.Fprintf(out, "  %s\n", failStyle.Render(err.Error()))
		}
	}
	return nil
}

func writeCoverage(flags *decodeFlags, frames []capture.Frame) error {
	if flags.report == "" && flags.jsonOut == "" {
		return nil
	}
	cov := report.BuildCoverage(flags.pcapPath, frames, time.Now())
	if flags.jsonOut != "" {
		if err := report.WriteJSONFile(flags.jsonOut, cov); err != nil {
			return err
		}
	}
	if flags.report != "" {
		f, err := os.Create(flags.report)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		report.WriteCoverageMarkdown(f, cov)
		if err := f.Close(); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

func decodeFrame(out io.Writer, raw []byte, reply bool) error {
	header, payload, err := enip.DecodeFrame(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s session=0x%08X status=%s context=0x%016X length=%d\n",
		titleStyle.Render(header.Command.String()), header.SessionHandle, header.Status, header.SenderContext, header.Length)

	switch header.Command {
	case enip.CommandRegisterSession:
		if len(payload) == 0 {
			return nil
		}
		data, err := enip.DecodeRegisterSessionData(payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  protocol version %d, options 0x%04X\n", data.ProtocolVersion, data.OptionsFlags)
	case enip.CommandSendRRData:
		if len(payload) == 0 {
			return nil
		}
		rr, err := enip.DecodeSendRRData(payload, enip.DecodeOptions{Responses: reply})
		if err != nil {
			return err
		}
		return describeSendRRData(out, rr)
	default:
		if len(payload) > 0 {
			fmt.Fprintf(out, "  data %s\n", hexBytes(payload))
		}
	}
	return nil
}

func describeSendRRData(out io.Writer, rr enip.SendRRData) error {
	fmt.Fprintf(out, "  interface 0x%08X timeout %ds items %d\n", rr.InterfaceHandle, rr.Timeout, rr.Packet.ItemCount())
	for _, item := range rr.Packet.Items {
		fmt.Fprintf(out, "  item %s (%d bytes)\n", item.Type(), item.Length())
	}
	data, ok := rr.Packet.UnconnectedData()
	if !ok {
		return nil
	}
	switch {
	case data.Response != nil:
		fmt.Fprint(out, indent(renderReply(spec.ServiceName(data.Response.ReplyService)+" reply", data.Response, 0)))
		fmt.Fprintln(out)
	case data.Request != nil:
		describeRequest(out, *data.Request, "  ")
	}
	return nil
}

func describeRequest(out io.Writer, req protocol.MessageRouterRequest, prefix string) {
	path, err := protocol.ParseEPATH(req.Path)
	label := spec.ServiceName(req.Service)
	target := hexBytes(req.Path)
	if err == nil {
		label, _ = spec.LabelService(req.Service, path, false)
		target = fmt.Sprintf("%s (%s)", path, spec.ClassName(path.Class))
	}
	fmt.Fprintf(out, "%srequest %s (0x%02X) -> %s\n", prefix, label, uint8(req.Service), target)
	fmt.Fprintf(out, "%sdata %s\n", prefix, hexBytes(req.Data))
	if err == nil {
		if verr := spec.DefaultRegistry().ValidateRequest(path, req.Service, req.Data); verr != nil {
			fmt.Fprintf(out, "%s%s\n", prefix, warnStyle.Render("invalid: "+verr.Error()))
		}
	}

	switch req.Service {
	case protocol.ServiceUnconnectedSend:
		us, err := protocol.DecodeUnconnectedSendRequest(req.Data)
		if err != nil {
			fmt.Fprintf(out, "%s%s\n", prefix, failStyle.Render(err.Error()))
			return
		}
		fmt.Fprintf(out, "%sroute %s timeout %s\n", prefix, hexBytes(us.RoutePath), us.Timeout())
		describeRequest(out, us.Message, prefix+"  ")
	case protocol.ServiceMultipleServicePacket:
		embedded, err := protocol.DecodeMultipleServiceRequest(req.Data)
		if err != nil {
			fmt.Fprintf(out, "%s%s\n", prefix, failStyle.Render(err.Error()))
			return
		}
		for _, e := range embedded {
			describeRequest(out, e, prefix+"  ")
		}
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
