package report

import (
	"fmt"
	"time"

	"github.com/tturner/enipcore/internal/capture"
	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/cip/spec"
	"github.com/tturner/enipcore/internal/enip"
)

// BuildCoverage tallies frames read from a capture. Frames sent to the
// target are decoded as requests, the rest as replies.
func BuildCoverage(source string, frames []capture.Frame, now time.Time) *Coverage {
	c := newCoverage(source)
	c.GeneratedAt = now.UTC().Format(time.RFC3339)
	for _, f := range frames {
		c.add(f)
	}
	return c
}

func (c *Coverage) add(f capture.Frame) {
	c.Frames++
	c.Commands[f.Header.Command.String()]++
	if f.Header.Status != enip.StatusSuccess {
		c.EncapStatuses[f.Header.Status.String()]++
	}
	if f.Header.Command != enip.CommandSendRRData || len(f.Payload()) == 0 {
		return
	}
	rr, err := enip.DecodeSendRRData(f.Payload(), enip.DecodeOptions{Responses: !f.ToTarget})
	if err != nil {
		c.Malformed++
		return
	}
	item, ok := rr.Packet.UnconnectedData()
	if !ok {
		return
	}
	switch {
	case item.Request != nil:
		c.addRequest(*item.Request, c.Requests)
	case item.Response != nil:
		c.addReply(item.Response)
	}
}

func (c *Coverage) service(code protocol.CIPServiceCode) *ServiceCount {
	code = code.Request()
	key := fmt.Sprintf("0x%02X", uint8(code))
	sc, ok := c.Services[key]
	if !ok {
		sc = &ServiceCount{Name: spec.ServiceName(code)}
		c.Services[key] = sc
	}
	return sc
}

// addRequest counts req under into and descends into the requests it carries.
func (c *Coverage) addRequest(req protocol.MessageRouterRequest, into map[string]int) {
	c.service(req.Service).Requests++
	into[requestKey(req)]++
	if path, err := protocol.ParseEPATH(req.Path); err == nil {
		if err := spec.DefaultRegistry().ValidateRequest(path, req.Service, req.Data); err != nil {
			c.Invalid[err.Error()]++
		}
	}

	switch req.Service {
	case protocol.ServiceUnconnectedSend:
		us, err := protocol.DecodeUnconnectedSendRequest(req.Data)
		if err != nil {
			c.Malformed++
			return
		}
		c.addRequest(us.Message, c.Embedded)
	case protocol.ServiceMultipleServicePacket:
		embedded, err := protocol.DecodeMultipleServiceRequest(req.Data)
		if err != nil {
			c.Malformed++
			return
		}
		for _, e := range embedded {
			c.addRequest(e, c.Embedded)
		}
	}
}

func (c *Coverage) addReply(resp *protocol.MessageRouterResponse) {
	sc := c.service(resp.ReplyService)
	sc.Replies++
	if !resp.OK() {
		sc.Errors++
		c.Statuses[fmt.Sprintf("0x%02X %s", uint8(resp.GeneralStatus), resp.GeneralStatus)]++
	}
	if multi, ok := resp.ResponseData.(protocol.MultipleServiceResponse); ok {
		for _, r := range multi.Replies {
			c.addReply(r)
		}
	}
}

func requestKey(req protocol.MessageRouterRequest) string {
	path, err := protocol.ParseEPATH(req.Path)
	if err != nil {
		return fmt.Sprintf("0x%02X %s path=%X", uint8(req.Service), spec.ServiceName(req.Service), req.Path)
	}
	label, _ := spec.LabelService(req.Service, path, false)
	return fmt.Sprintf("0x%02X %s %s", uint8(req.Service), label, path)
}
