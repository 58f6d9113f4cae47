package server

import (
	"bytes"

	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/enip"
)

type connState struct {
	sessions map[uint32]struct{}
}

// handleCommand answers one request frame. A nil reply means nothing is sent.
func (s *Server) handleCommand(state *connState, h enip.Header, payload []byte) ([]byte, bool) {
	switch h.Command {
	case enip.CommandRegisterSession:
		return s.handleRegisterSession(state, h, payload), false
	case enip.CommandUnregisterSession:
		if _, ok := state.sessions[h.SessionHandle]; ok {
			delete(state.sessions, h.SessionHandle)
			s.count(func(st *Stats) { st.Sessions-- })
		}
		s.logger.Info("Unregistered session 0x%08X", h.SessionHandle)
		return nil, true
	case enip.CommandSendRRData:
		return s.handleSendRRData(state, h, payload), false
	case enip.CommandNOP:
		return nil, false
	default:
		s.logger.Verbose("Unsupported command %s", h.Command)
		s.count(func(st *Stats) { st.Failures++ })
		return errorReply(h, enip.StatusInvalidCommand), false
	}
}

func (s *Server) handleRegisterSession(state *connState, h enip.Header, payload []byte) []byte {
	req, err := enip.DecodeRegisterSessionData(payload)
	if err != nil || len(payload) != 4 {
		return errorReply(h, enip.StatusInvalidLength)
	}
	if req.ProtocolVersion != enip.DefaultRegisterSessionData.ProtocolVersion || req.OptionsFlags != 0 {
		s.count(func(st *Stats) { st.Failures++ })
		frame, _ := enip.EncodeFrame(enip.Header{
			Command:       enip.CommandRegisterSession,
			Status:        enip.StatusUnsupportedProtocolRevision,
			SenderContext: h.SenderContext,
		}, enip.DefaultRegisterSessionData.Encode())
		return frame
	}
	id := s.allocateSession()
	state.sessions[id] = struct{}{}
	s.count(func(st *Stats) {
		st.Registered++
		st.Sessions++
	})
	s.logger.Info("Registered session 0x%08X", id)
	frame, _ := enip.EncodeFrame(enip.Header{
		Command:       enip.CommandRegisterSession,
		SessionHandle: id,
		SenderContext: h.SenderContext,
	}, payload)
	return frame
}

func (s *Server) handleSendRRData(state *connState, h enip.Header, payload []byte) []byte {
	if _, ok := state.sessions[h.SessionHandle]; !ok {
		s.count(func(st *Stats) { st.Failures++ })
		return errorReply(h, enip.StatusInvalidSessionHandle)
	}
	rr, err := enip.DecodeSendRRData(payload, enip.DecodeOptions{})
	if err != nil {
		s.logger.Verbose("SendRRData decode: %v", err)
		return errorReply(h, enip.StatusIncorrectData)
	}
	item, ok := rr.Packet.UnconnectedData()
	if !ok || item.Request == nil {
		return errorReply(h, enip.StatusIncorrectData)
	}
	resp := s.handleCIP(*item.Request, true)
	s.count(func(st *Stats) {
		st.Requests++
		if !resp.OK() {
			st.Failures++
		}
	})
	reply := enip.SendRRData{
		InterfaceHandle: rr.InterfaceHandle,
		Packet: enip.CommonPacketFormat{Items: []enip.Item{
			enip.NullAddressItem{},
			enip.UnconnectedDataItem{Response: resp},
		}},
	}
	body, err := reply.Encode()
	if err != nil {
		s.logger.Error("Encode reply: %v", err)
		return errorReply(h, enip.StatusInsufficientMemory)
	}
	frame, err := enip.EncodeFrame(enip.Header{
		Command:       enip.CommandSendRRData,
		SessionHandle: h.SessionHandle,
		SenderContext: h.SenderContext,
	}, body)
	if err != nil {
		return errorReply(h, enip.StatusInsufficientMemory)
	}
	return frame
}

func errorReply(h enip.Header, status enip.Status) []byte {
	frame, _ := enip.EncodeFrame(enip.Header{
		Command:       h.Command,
		SessionHandle: h.SessionHandle,
		Status:        status,
		SenderContext: h.SenderContext,
	}, nil)
	return frame
}

// handleCIP answers a Message Router request. Unconnected Send is only
// accepted at the top level, not nested inside another routed message.
func (s *Server) handleCIP(req protocol.MessageRouterRequest, allowRouting bool) *protocol.MessageRouterResponse {
	if req.Service == protocol.ServiceUnconnectedSend && allowRouting {
		return s.handleUnconnectedSend(req)
	}
	if req.Service == protocol.ServiceMultipleServicePacket {
		return s.handleMultipleService(req)
	}
	path, err := protocol.ParseEPATH(req.Path)
	if err != nil {
		return statusReply(req.Service, protocol.StatusPathSegmentError)
	}
	switch path.Class {
	case protocol.ClassIdentity:
		return s.handleIdentity(req.Service, path)
	default:
		return statusReply(req.Service, protocol.StatusPathDestinationUnknown)
	}
}

func (s *Server) handleUnconnectedSend(req protocol.MessageRouterRequest) *protocol.MessageRouterResponse {
	path, err := protocol.ParseEPATH(req.Path)
	if err != nil || path.Class != protocol.ClassConnectionManager {
		return statusReply(req.Service, protocol.StatusPathDestinationUnknown)
	}
	us, err := protocol.DecodeUnconnectedSendRequest(req.Data)
	if err != nil {
		s.logger.Verbose("Unconnected Send decode: %v", err)
		return statusReply(req.Service, protocol.StatusNotEnoughData)
	}
	want := protocol.BackplaneRoute(s.cfg.Slot)
	route := us.RoutePath
	if !bytes.Equal(route, want) {
		code := protocol.RoutingInvalidNodeAddress
		if len(route) == 0 || route[0] != want[0] {
			code = protocol.RoutingInvalidPortID
		}
		return &protocol.MessageRouterResponse{
			ReplyService:      req.Service.Reply(),
			GeneralStatus:     protocol.StatusConnectionFailure,
			AdditionalStatus:  []uint16{uint16(code)},
			RemainingPathSize: uint8((len(route) + 1) / 2),
		}
	}
	return s.handleCIP(us.Message, false)
}

func (s *Server) handleMultipleService(req protocol.MessageRouterRequest) *protocol.MessageRouterResponse {
	requests, err := protocol.DecodeMultipleServiceRequest(req.Data)
	if err != nil {
		return statusReply(req.Service, protocol.StatusNotEnoughData)
	}
	replies := make([]*protocol.MessageRouterResponse, 0, len(requests))
	for _, embedded := range requests {
		replies = append(replies, s.handleCIP(embedded, false))
	}
	body, err := protocol.BuildMultipleServiceResponse(replies)
	if err != nil {
		return statusReply(req.Service, protocol.StatusReplyDataTooLarge)
	}
	// Embedded failures are reported per reply; the packet itself succeeds.
	return &protocol.MessageRouterResponse{ReplyService: req.Service.Reply(), Data: body}
}

func statusReply(service protocol.CIPServiceCode, status protocol.GeneralStatus) *protocol.MessageRouterResponse {
	return &protocol.MessageRouterResponse{ReplyService: service.Reply(), GeneralStatus: status}
}
