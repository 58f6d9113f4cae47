package server

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/enip"
)

func pipeServer(t *testing.T, cfg Config) net.Conn {
	t.Helper()
	client, conn := net.Pipe()
	srv := New(cfg, nil)
	done := make(chan struct{})
	go func() {
		srv.ServeConn(conn)
		close(done)
	}()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))
	return client
}

func roundTrip(t *testing.T, conn net.Conn, frame []byte) (enip.Header, []byte) {
	t.Helper()
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := readFrame(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	h, payload, err := enip.DecodeFrame(reply)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	return h, payload
}

func register(t *testing.T, conn net.Conn) uint32 {
	t.Helper()
	h, _ := roundTrip(t, conn, enip.BuildRegisterSession(0x42))
	if h.Status != enip.StatusSuccess || h.SessionHandle == 0 || h.SenderContext != 0x42 {
		t.Fatalf("register reply = %+v", h)
	}
	return h.SessionHandle
}

func sendReply(t *testing.T, conn net.Conn, handle uint32, rr enip.SendRRData) *protocol.MessageRouterResponse {
	t.Helper()
	frame, err := enip.BuildSendRRData(handle, 7, rr)
	if err != nil {
		t.Fatalf("BuildSendRRData: %v", err)
	}
	h, payload := roundTrip(t, conn, frame)
	if h.Status != enip.StatusSuccess {
		t.Fatalf("SendRRData status = %s", h.Status)
	}
	decoded, err := enip.DecodeSendRRData(payload, enip.DecodeOptions{Responses: true})
	if err != nil {
		t.Fatalf("DecodeSendRRData: %v", err)
	}
	resp, err := decoded.Reply()
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	return resp
}

func TestRegisterAndGetAttributeSingle(t *testing.T) {
	conn := pipeServer(t, DefaultConfig())
	handle := register(t, conn)

	path := protocol.EncodeEPATH(protocol.CIPPath{Class: 1, Instance: 1, Attribute: 7, HasAttribute: true})
	req, _ := protocol.NewMessageRouterRequest(protocol.ServiceGetAttributeSingle, path, nil)
	rr, _ := enip.NewDirectSendRRData(req)
	resp := sendReply(t, conn, handle, rr)

	if !resp.OK() || resp.ReplyService != 0x8E {
		t.Fatalf("reply = %+v", resp)
	}
	want := shortString(DefaultIdentity().ProductName)
	if !bytes.Equal(resp.Data, want) {
		t.Fatalf("product name = % X, want % X", resp.Data, want)
	}
}

func TestRoutedRequestReachesSlot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Slot = 2
	conn := pipeServer(t, cfg)
	handle := register(t, conn)

	path := protocol.EncodeEPATH(protocol.CIPPath{Class: 1, Instance: 1, Attribute: 1, HasAttribute: true})
	rr, err := enip.NewSendRRData(protocol.ServiceGetAttributeSingle, protocol.BackplaneRoute(2), path, nil)
	if err != nil {
		t.Fatalf("NewSendRRData: %v", err)
	}
	resp := sendReply(t, conn, handle, rr)
	if !resp.OK() || !bytes.Equal(resp.Data, []byte{0x01, 0x00}) {
		t.Fatalf("routed reply = %+v", resp)
	}

	rr, _ = enip.NewSendRRData(protocol.ServiceGetAttributeSingle, protocol.BackplaneRoute(5), path, nil)
	resp = sendReply(t, conn, handle, rr)
	if resp.ReplyService != 0xD2 || resp.GeneralStatus != protocol.StatusConnectionFailure {
		t.Fatalf("bad slot reply = %+v", resp)
	}
	code, ok := resp.RoutingError()
	if !ok || code != protocol.RoutingInvalidNodeAddress || resp.RemainingPathSize != 1 {
		t.Fatalf("routing error = %v %v, remaining %d", code, ok, resp.RemainingPathSize)
	}
}

func TestUnsupportedProtocolRevision(t *testing.T) {
	conn := pipeServer(t, DefaultConfig())
	frame, _ := enip.EncodeFrame(enip.Header{Command: enip.CommandRegisterSession, SenderContext: 9},
		enip.RegisterSessionData{ProtocolVersion: 2}.Encode())
	h, payload := roundTrip(t, conn, frame)
	if h.Status != enip.StatusUnsupportedProtocolRevision || h.SessionHandle != 0 {
		t.Fatalf("reply header = %+v", h)
	}
	offer, err := enip.DecodeRegisterSessionData(payload)
	if err != nil || offer.ProtocolVersion != 1 {
		t.Fatalf("offered version = %+v, %v", offer, err)
	}
}

func TestSendRRDataUnknownSession(t *testing.T) {
	conn := pipeServer(t, DefaultConfig())
	req, _ := protocol.NewMessageRouterRequest(protocol.ServiceGetAttributeSingle, []byte{0x20, 0x01, 0x24, 0x01}, nil)
	rr, _ := enip.NewDirectSendRRData(req)
	frame, _ := enip.BuildSendRRData(0xDEAD, 1, rr)
	h, _ := roundTrip(t, conn, frame)
	if h.Status != enip.StatusInvalidSessionHandle {
		t.Fatalf("status = %s, want InvalidSessionHandle", h.Status)
	}
}

func TestIdentityStatuses(t *testing.T) {
	conn := pipeServer(t, DefaultConfig())
	handle := register(t, conn)

	tests := []struct {
		name    string
		service protocol.CIPServiceCode
		path    protocol.CIPPath
		want    protocol.GeneralStatus
	}{
		{"unknown attribute", protocol.ServiceGetAttributeSingle, protocol.CIPPath{Class: 1, Instance: 1, Attribute: 99, HasAttribute: true}, protocol.StatusAttributeNotSupported},
		{"unknown instance", protocol.ServiceGetAttributeSingle, protocol.CIPPath{Class: 1, Instance: 2, Attribute: 1, HasAttribute: true}, protocol.StatusObjectDoesNotExist},
		{"unknown class", protocol.ServiceGetAttributeSingle, protocol.CIPPath{Class: 0x64, Instance: 1}, protocol.StatusPathDestinationUnknown},
		{"unsupported service", 0x10, protocol.CIPPath{Class: 1, Instance: 1, Attribute: 1, HasAttribute: true}, protocol.StatusServiceNotSupported},
		{"get all", 0x01, protocol.CIPPath{Class: 1, Instance: 1}, protocol.StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := protocol.NewMessageRouterRequest(tt.service, protocol.EncodeEPATH(tt.path), nil)
			rr, _ := enip.NewDirectSendRRData(req)
			resp := sendReply(t, conn, handle, rr)
			if resp.GeneralStatus != tt.want {
				t.Fatalf("status = %s, want %s", resp.GeneralStatus, tt.want)
			}
		})
	}
}

func TestMultipleServicePacket(t *testing.T) {
	conn := pipeServer(t, DefaultConfig())
	handle := register(t, conn)

	vendor, _ := protocol.NewMessageRouterRequest(protocol.ServiceGetAttributeSingle,
		protocol.EncodeEPATH(protocol.CIPPath{Class: 1, Instance: 1, Attribute: 1, HasAttribute: true}), nil)
	missing, _ := protocol.NewMessageRouterRequest(protocol.ServiceGetAttributeSingle,
		protocol.EncodeEPATH(protocol.CIPPath{Class: 1, Instance: 1, Attribute: 42, HasAttribute: true}), nil)
	body, _ := protocol.BuildMultipleServiceRequest([]protocol.MessageRouterRequest{vendor, missing})
	req, _ := protocol.NewMessageRouterRequest(protocol.ServiceMultipleServicePacket, []byte{0x20, 0x02, 0x24, 0x01}, body)
	rr, _ := enip.NewDirectSendRRData(req)
	resp := sendReply(t, conn, handle, rr)

	msp, ok := resp.ResponseData.(protocol.MultipleServiceResponse)
	if !ok || len(msp.Replies) != 2 {
		t.Fatalf("ResponseData = %#v", resp.ResponseData)
	}
	if !msp.Replies[0].OK() || msp.Replies[1].GeneralStatus != protocol.StatusAttributeNotSupported {
		t.Fatalf("replies = %+v %+v", msp.Replies[0], msp.Replies[1])
	}
}

func TestUnregisterClosesConnection(t *testing.T) {
	conn := pipeServer(t, DefaultConfig())
	handle := register(t, conn)
	if _, err := conn.Write(enip.BuildUnregisterSession(handle, 3)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readFrame(conn); err == nil {
		t.Fatalf("expected the target to close the connection")
	}
}

func TestStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	srv := New(cfg, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	register(t, conn)
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := readFrame(conn); err == nil {
		t.Fatalf("connection should be closed after Stop")
	}
	conn.Close()
}

func TestStatsCountSessionsAndFailures(t *testing.T) {
	srv := New(DefaultConfig(), nil)
	client, conn := net.Pipe()
	done := make(chan struct{})
	go func() {
		srv.ServeConn(conn)
		close(done)
	}()
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))

	handle := register(t, client)
	mr, err := protocol.NewMessageRouterRequest(0x0E, protocol.EncodeEPATH(protocol.CIPPath{Class: 0x01, Instance: 1, Attribute: 99, HasAttribute: true}), nil)
	if err != nil {
		t.Fatalf("NewMessageRouterRequest: %v", err)
	}
	rr, err := enip.NewDirectSendRRData(mr)
	if err != nil {
		t.Fatalf("NewDirectSendRRData: %v", err)
	}
	sendReply(t, client, handle, rr)

	st := srv.Stats()
	if st.Connections != 1 || st.Sessions != 1 || st.Registered != 1 || st.Requests != 1 || st.Failures != 1 {
		t.Fatalf("stats = %+v", st)
	}

	client.Close()
	<-done
	st = srv.Stats()
	if st.Connections != 0 || st.Sessions != 0 || st.Registered != 1 {
		t.Fatalf("stats after close = %+v", st)
	}
}
