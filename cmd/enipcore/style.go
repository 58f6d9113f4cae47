package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/cip/spec"
)

var (
	colorAccent  = lipgloss.Color("#7aa2f7")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorWarning = lipgloss.Color("#e0af68")
	colorError   = lipgloss.Color("#f7768e")
	colorDim     = lipgloss.Color("#565f89")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	okStyle    = lipgloss.NewStyle().Foreground(colorSuccess)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarning)
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1)
)

// hexBytes renders data as space separated hex pairs.
func hexBytes(data []byte) string {
	if len(data) == 0 {
		return "-"
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

func renderStatus(resp *protocol.MessageRouterResponse) string {
	label := fmt.Sprintf("0x%02X %s", uint8(resp.GeneralStatus), resp.GeneralStatus)
	switch {
	case resp.OK():
		return okStyle.Render(label)
	case resp.GeneralStatus == protocol.StatusPartialTransfer || resp.GeneralStatus == protocol.StatusEmbeddedServiceError:
		return warnStyle.Render(label)
	default:
		return failStyle.Render(label)
	}
}

// renderReply formats one reply as a boxed block.
func renderReply(name string, resp *protocol.MessageRouterResponse, rttMs float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(name))
	fmt.Fprintf(&b, "service  %s (0x%02X)\n", spec.ServiceName(resp.ReplyService), uint8(resp.ReplyService))
	fmt.Fprintf(&b, "status   %s\n", renderStatus(resp))
	if len(resp.AdditionalStatus) > 0 {
		words := make([]string, len(resp.AdditionalStatus))
		for i, w := range resp.AdditionalStatus {
			words[i] = fmt.Sprintf("0x%04X", w)
		}
		fmt.Fprintf(&b, "extended %s\n", strings.Join(words, " "))
	}
	if rerr, ok := resp.RoutingError(); ok {
		fmt.Fprintf(&b, "routing  %s\n", failStyle.Render(rerr.String()))
	}
	fmt.Fprintf(&b, "data     %s\n", hexBytes(resp.Data))
	if multi, ok := resp.ResponseData.(protocol.MultipleServiceResponse); ok {
		for i, r := range multi.Replies {
			fmt.Fprintf(&b, "  [%d] %s %s\n", i, renderStatus(r), hexBytes(r.Data))
		}
	}
	fmt.Fprintf(&b, "%s", dimStyle.Render(fmt.Sprintf("rtt %.3fms", rttMs)))
	return boxStyle.Render(b.String())
}
