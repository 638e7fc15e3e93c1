// Package vhost implements the virtual-host packet generator and its
// bit-exact Ethernet/ARP/IPv4/UDP frame builders (spec.md §6 "Virtual host
// build helpers"), grounded on
// _examples/original_source/three_port_switch/virtual_host.c and wire-codec
// idioms in _examples/dantte-lp-gobfd/internal/bfd/packet.go.
package vhost

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/netfabric/govswitch/internal/fabric"
)

const (
	ethernetHeaderLen = 14
	arpPayloadLen     = 28
	ipv4HeaderLen     = 20
	udpHeaderLen      = 8
)

// ARP operation codes (spec.md §6).
const (
	ARPRequest uint16 = 1
	ARPReply   uint16 = 2
)

var (
	// ErrBufferTooSmall is returned by BuildUDPPacket when the IPv4 total
	// length would exceed 65535 bytes.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrShortPacket is returned by a decoder when the input is shorter
	// than the structure it is asked to parse.
	ErrShortPacket = errors.New("packet too short")

	// ErrNotARP / ErrNotUDPIP guard decoders against being handed the
	// wrong ethertype.
	ErrNotARP   = errors.New("not an ARP frame")
	ErrNotUDPIP = errors.New("not a UDP/IPv4 frame")
)

// IPv4 is a dotted-quad address stored as 4 bytes.
type IPv4 [4]byte

func (a IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// BuildEthernetFrame assembles dst(6) + src(6) + ethertype(2) + payload
// (spec.md §6 "Ethernet frame").
func BuildEthernetFrame(dst, src fabric.MAC, ethertype uint16, payload []byte) ([]byte, error) {
	total := ethernetHeaderLen + len(payload)
	frame := make([]byte, total)
	copy(frame[0:6], dst[:])
	copy(frame[6:12], src[:])
	binary.BigEndian.PutUint16(frame[12:14], ethertype)
	copy(frame[14:], payload)
	return frame, nil
}

// BuildARPRequest assembles a broadcast ARP request asking who has
// targetIP, sourced from srcMAC/srcIP (spec.md §6 "ARP").
func BuildARPRequest(srcMAC fabric.MAC, srcIP, targetIP IPv4) []byte {
	arp := buildARPPayload(ARPRequest, srcMAC, srcIP, fabric.MAC{}, targetIP)
	frame, _ := BuildEthernetFrame(fabric.BroadcastMAC, srcMAC, uint16(fabric.EtherTypeARP), arp)
	return frame
}

// BuildARPReply assembles a unicast ARP reply to dstMAC/dstIP, sourced
// from srcMAC/srcIP.
func BuildARPReply(srcMAC fabric.MAC, srcIP IPv4, dstMAC fabric.MAC, dstIP IPv4) []byte {
	arp := buildARPPayload(ARPReply, srcMAC, srcIP, dstMAC, dstIP)
	frame, _ := BuildEthernetFrame(dstMAC, srcMAC, uint16(fabric.EtherTypeARP), arp)
	return frame
}

func buildARPPayload(op uint16, senderMAC fabric.MAC, senderIP IPv4, targetMAC fabric.MAC, targetIP IPv4) []byte {
	arp := make([]byte, arpPayloadLen)
	binary.BigEndian.PutUint16(arp[0:2], 1)      // hardware type: Ethernet
	binary.BigEndian.PutUint16(arp[2:4], 0x0800) // protocol type: IPv4
	arp[4] = fabric.MACLen
	arp[5] = 4
	binary.BigEndian.PutUint16(arp[6:8], op)
	copy(arp[8:14], senderMAC[:])
	copy(arp[14:18], senderIP[:])
	copy(arp[18:24], targetMAC[:])
	copy(arp[24:28], targetIP[:])
	return arp
}

// ARPPacket is a decoded ARP request or reply.
type ARPPacket struct {
	Operation uint16
	SenderMAC fabric.MAC
	SenderIP  IPv4
	TargetMAC fabric.MAC
	TargetIP  IPv4
}

// DecodeARP parses an Ethernet frame believed to carry an ARP payload.
func DecodeARP(frame []byte) (ARPPacket, error) {
	if len(frame) < ethernetHeaderLen+arpPayloadLen {
		return ARPPacket{}, fmt.Errorf("decode arp: %w", ErrShortPacket)
	}
	if binary.BigEndian.Uint16(frame[12:14]) != uint16(fabric.EtherTypeARP) {
		return ARPPacket{}, ErrNotARP
	}

	arp := frame[ethernetHeaderLen:]
	var pkt ARPPacket
	pkt.Operation = binary.BigEndian.Uint16(arp[6:8])
	copy(pkt.SenderMAC[:], arp[8:14])
	copy(pkt.SenderIP[:], arp[14:18])
	copy(pkt.TargetMAC[:], arp[18:24])
	copy(pkt.TargetIP[:], arp[24:28])
	return pkt, nil
}

// BuildUDPPacket assembles a full Ethernet + IPv4 + UDP frame, matching
// the original's vhost_build_udp_packet byte-for-byte: IHL=5, ToS=0,
// TTL=64, protocol=UDP(17), valid IPv4 header checksum, zero UDP
// checksum (spec.md §6 "IPv4/UDP").
func BuildUDPPacket(dstMAC, srcMAC fabric.MAC, dstIP, srcIP IPv4, dstPort, srcPort uint16, payload []byte) ([]byte, error) {
	ipLen := ipv4HeaderLen + udpHeaderLen + len(payload)
	if ipLen > 0xFFFF {
		return nil, fmt.Errorf("build udp packet: %w", ErrBufferTooSmall)
	}

	ip := make([]byte, ipv4HeaderLen+udpHeaderLen+len(payload))
	ip[0] = 0x45 // version 4, IHL 5
	ip[1] = 0x00 // DSCP/ECN
	binary.BigEndian.PutUint16(ip[2:4], uint16(ipLen)) //nolint:gosec // bounded above
	// ip[4:8] identification/flags/fragment left zero
	ip[8] = 64 // TTL
	ip[9] = 17 // protocol: UDP
	// ip[10:12] checksum filled below
	copy(ip[12:16], srcIP[:])
	copy(ip[16:20], dstIP[:])

	checksum := fabric.IPv4Checksum(ip[0:ipv4HeaderLen])
	binary.BigEndian.PutUint16(ip[10:12], checksum)

	udp := ip[ipv4HeaderLen:]
	udpLen := udpHeaderLen + len(payload)
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpLen)) //nolint:gosec // bounded by caller
	// udp[6:8] checksum left zero (optional for IPv4 UDP)
	copy(udp[8:], payload)

	return BuildEthernetFrame(dstMAC, srcMAC, uint16(fabric.EtherTypeIPv4), ip)
}

// UDPPacket is a decoded Ethernet + IPv4 + UDP frame.
type UDPPacket struct {
	DstMAC, SrcMAC fabric.MAC
	DstIP, SrcIP   IPv4
	DstPort        uint16
	SrcPort        uint16
	Payload        []byte
}

// DecodeUDPPacket parses an Ethernet frame believed to carry IPv4/UDP,
// the inverse of BuildUDPPacket (spec.md §8 round-trip law:
// "encode-UDP-IP(...); decode-UDP-IP(...) returns identical MACs, IPs,
// ports, and payload").
func DecodeUDPPacket(frame []byte) (UDPPacket, error) {
	if len(frame) < ethernetHeaderLen+ipv4HeaderLen+udpHeaderLen {
		return UDPPacket{}, fmt.Errorf("decode udp packet: %w", ErrShortPacket)
	}
	if binary.BigEndian.Uint16(frame[12:14]) != uint16(fabric.EtherTypeIPv4) {
		return UDPPacket{}, ErrNotUDPIP
	}

	var pkt UDPPacket
	copy(pkt.DstMAC[:], frame[0:6])
	copy(pkt.SrcMAC[:], frame[6:12])

	ip := frame[ethernetHeaderLen:]
	if ip[9] != 17 {
		return UDPPacket{}, ErrNotUDPIP
	}
	copy(pkt.SrcIP[:], ip[12:16])
	copy(pkt.DstIP[:], ip[16:20])

	ihl := int(ip[0]&0x0F) * 4
	if ihl < ipv4HeaderLen || len(ip) < ihl+udpHeaderLen {
		return UDPPacket{}, fmt.Errorf("decode udp packet: %w", ErrShortPacket)
	}

	udp := ip[ihl:]
	pkt.SrcPort = binary.BigEndian.Uint16(udp[0:2])
	pkt.DstPort = binary.BigEndian.Uint16(udp[2:4])
	udpLen := int(binary.BigEndian.Uint16(udp[4:6]))
	if udpLen < udpHeaderLen || len(udp) < udpLen {
		return UDPPacket{}, fmt.Errorf("decode udp packet: %w", ErrShortPacket)
	}

	pkt.Payload = append([]byte(nil), udp[udpHeaderLen:udpLen]...)
	return pkt, nil
}
