// Package capture records session traffic to pcap files and reads
// encapsulation frames back out of captures.
package capture

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/enipcore/internal/session"
)

const snapLen = 65535

// Endpoints names the two ends of the synthesized TCP flow.
type Endpoints struct {
	ClientIP   net.IP
	ClientPort uint16
	TargetIP   net.IP
	TargetPort uint16
}

// DefaultEndpoints is used when the real connection addresses are not TCP.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		ClientIP:   net.IPv4(192, 168, 100, 10).To4(),
		ClientPort: 50000,
		TargetIP:   net.IPv4(192, 168, 100, 20).To4(),
		TargetPort: 44818,
	}
}

// EndpointsFromConn takes addresses from a TCP connection, falling back to
// DefaultEndpoints for anything else (pipes, SSH channels with odd addrs).
func EndpointsFromConn(conn net.Conn) Endpoints {
	ep := DefaultEndpoints()
	if local, ok := conn.LocalAddr().(*net.TCPAddr); ok && local.IP.To4() != nil {
		ep.ClientIP, ep.ClientPort = local.IP.To4(), uint16(local.Port)
	}
	if remote, ok := conn.RemoteAddr().(*net.TCPAddr); ok && remote.IP.To4() != nil {
		ep.TargetIP, ep.TargetPort = remote.IP.To4(), uint16(remote.Port)
	}
	return ep
}

// Writer turns session frames into Ethernet/IPv4/TCP packets in a pcap file.
// It implements session.FrameObserver.
type Writer struct {
	mu        sync.Mutex
	w         *pcapgo.Writer
	closer    io.Closer
	ep        Endpoints
	clientSeq uint32
	targetSeq uint32
	packets   int
	err       error
	now       func() time.Time
}

// NewWriter writes a pcap file header to w.
func NewWriter(w io.Writer, ep Endpoints) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{w: pw, ep: ep, clientSeq: 1, targetSeq: 1, now: time.Now}, nil
}

// Create opens path and writes a pcap file header to it.
func Create(path string, ep Endpoints) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap: %w", err)
	}
	w, err := NewWriter(file, ep)
	if err != nil {
		file.Close()
		return nil, err
	}
	w.closer = file
	return w, nil
}

// ObserveFrame appends one frame as a single TCP segment. Errors are kept and
// reported by Err and Close so a capture problem never breaks the session.
func (w *Writer) ObserveFrame(dir session.Direction, frame []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	w.err = w.writeSegment(dir, frame)
}

func (w *Writer) writeSegment(dir session.Direction, frame []byte) error {
	srcIP, dstIP := w.ep.ClientIP, w.ep.TargetIP
	srcPort, dstPort := w.ep.ClientPort, w.ep.TargetPort
	seq, ack := &w.clientSeq, w.targetSeq
	if dir == session.Inbound {
		srcIP, dstIP = dstIP, srcIP
		srcPort, dstPort = dstPort, srcPort
		seq, ack = &w.targetSeq, w.clientSeq
	}

	ethernet := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	if dir == session.Inbound {
		ethernet.SrcMAC, ethernet.DstMAC = ethernet.DstMAC, ethernet.SrcMAC
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		ACK:     true,
		PSH:     true,
		Seq:     *seq,
		Ack:     ack,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("tcp checksum: %w", err)
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, ethernet, ip, tcp, gopacket.Payload(frame)); err != nil {
		return fmt.Errorf("serialize packet: %w", err)
	}
	*seq += uint32(len(frame))

	data := buffer.Bytes()
	if err := w.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     w.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	w.packets++
	return nil
}

// Packets is the number of packets written.
func (w *Writer) Packets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packets
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying file when the writer owns one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var closeErr error
	if w.closer != nil {
		closeErr = w.closer.Close()
		w.closer = nil
	}
	if w.err != nil {
		return w.err
	}
	return closeErr
}

var _ session.FrameObserver = (*Writer)(nil)
