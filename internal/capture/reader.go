package capture

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/enipcore/internal/enip"
)

// Frame is one encapsulation frame recovered from a capture.
type Frame struct {
	Timestamp time.Time
	Transport string // "tcp" or "udp"
	Src       string
	Dst       string
	ToTarget  bool
	Header    enip.Header
	Raw       []byte // header + payload
}

// Payload is the command-specific data after the header.
func (f Frame) Payload() []byte {
	return f.Raw[enip.HeaderSize:]
}

// ReadFile extracts frames from a pcap file; see ReadFrames for port.
func ReadFile(path string, port uint16) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap file: %w", err)
	}
	defer file.Close()
	return ReadFrames(file, port)
}

// ReadFrames extracts encapsulation frames from pcap data. TCP payloads are
// concatenated per direction so frames split across segments are recovered.
// port selects the target port; 0 means 44818.
func ReadFrames(r io.Reader, port uint16) ([]Frame, error) {
	if port == 0 {
		port = 44818
	}
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}

	var frames []Frame
	streams := make(map[string][]byte)
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	for packet := range source.Packets() {
		var src, dst string
		if nl := packet.NetworkLayer(); nl != nil {
			src, dst = nl.NetworkFlow().Src().String(), nl.NetworkFlow().Dst().String()
		}
		ts := packet.Metadata().Timestamp

		if tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
			if uint16(tcp.SrcPort) != port && uint16(tcp.DstPort) != port {
				continue
			}
			if len(tcp.Payload) == 0 {
				continue
			}
			toTarget := uint16(tcp.DstPort) == port
			key := fmt.Sprintf("%s:%d>%s:%d", src, tcp.SrcPort, dst, tcp.DstPort)
			buf := append(streams[key], tcp.Payload...)
			parsed, rest := splitFrames(buf)
			for _, raw := range parsed {
				frames = append(frames, newFrame(ts, "tcp", src, dst, toTarget, raw))
			}
			streams[key] = rest
			continue
		}

		if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
			if uint16(udp.SrcPort) != port && uint16(udp.DstPort) != port {
				continue
			}
			parsed, _ := splitFrames(udp.Payload)
			for _, raw := range parsed {
				frames = append(frames, newFrame(ts, "udp", src, dst, uint16(udp.DstPort) == port, raw))
			}
		}
	}
	return frames, nil
}

func newFrame(ts time.Time, transport, src, dst string, toTarget bool, raw []byte) Frame {
	h, _, _ := enip.DecodeHeader(raw, 0)
	return Frame{
		Timestamp: ts,
		Transport: transport,
		Src:       src,
		Dst:       dst,
		ToTarget:  toTarget,
		Header:    h,
		Raw:       raw,
	}
}

// splitFrames cuts complete frames off the front of buf and returns the
// incomplete tail. Bytes that cannot start a frame are skipped one at a time
// so a capture that begins mid-stream resynchronizes.
func splitFrames(buf []byte) ([][]byte, []byte) {
	var frames [][]byte
	offset := 0
	for len(buf)-offset >= enip.HeaderSize {
		h, _, err := enip.DecodeHeader(buf, offset)
		if err != nil || !h.Command.Known() {
			offset++
			continue
		}
		total := enip.HeaderSize + int(h.Length)
		if len(buf)-offset < total {
			break
		}
		frames = append(frames, append([]byte(nil), buf[offset:offset+total]...))
		offset += total
	}
	return frames, append([]byte(nil), buf[offset:]...)
}
