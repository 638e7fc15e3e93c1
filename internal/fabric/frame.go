// Package fabric implements the switch forwarding plane: frame header
// parsing and rewrite, the MAC table, priority queues and their scheduler,
// virtual links between switches, and the switch/topology wiring itself.
package fabric

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Wire layout constants
// -------------------------------------------------------------------------

const (
	// MACLen is the length in bytes of an Ethernet MAC address.
	MACLen = 6

	// EthernetHeaderLen is dst(6) + src(6) + ethertype(2).
	EthernetHeaderLen = 2*MACLen + 2

	// VLANTagLen is the length of an 802.1Q tag (TPID replaces ethertype
	// position; TCI(2) + inner ethertype(2) follow).
	VLANTagLen = 4

	// IPv4HeaderMinLen is the minimum (no-options) IPv4 header length.
	IPv4HeaderMinLen = 20

	// minFrameForIP is the shortest frame that can plausibly carry an IPv4
	// header: spec.md 4.A treats anything shorter as non-IP.
	minFrameForIP = EthernetHeaderLen + IPv4HeaderMinLen
)

// EtherType identifies the payload carried after the Ethernet header.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeVLAN EtherType = 0x8100
	EtherTypeIPv6 EtherType = 0x86DD
)

// BroadcastMAC is the all-ones Ethernet broadcast address.
var BroadcastMAC = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// MAC is a 6-byte Ethernet hardware address, compared and hashed as an
// opaque byte sequence (spec.md §3).
type MAC [MACLen]byte

// IsBroadcast reports whether m is the all-ones broadcast address.
func (m MAC) IsBroadcast() bool { return m == BroadcastMAC }

// String renders the MAC in colon-hex notation.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// -------------------------------------------------------------------------
// Errors
// -------------------------------------------------------------------------

var (
	// ErrFrameTooShort indicates the buffer is too short to contain even an
	// Ethernet header.
	ErrFrameTooShort = errors.New("frame shorter than an Ethernet header")
)

// -------------------------------------------------------------------------
// Frame — a mutable view over an owned byte buffer (spec.md §3)
// -------------------------------------------------------------------------

// Frame is an Ethernet frame buffer, mutated in place for TTL rewrite.
// Ownership: exclusively held by whoever currently holds the Frame value;
// Clone must be used for fan-out (spec.md §3 "Ownership").
type Frame struct {
	Buf []byte
}

// NewFrame wraps buf as a Frame without copying.
func NewFrame(buf []byte) Frame { return Frame{Buf: buf} }

// Clone returns a Frame with its own copy of the underlying bytes. Used for
// every flood recipient except the last (spec.md §3, §9 "Flood cloning").
func (f Frame) Clone() Frame {
	cp := make([]byte, len(f.Buf))
	copy(cp, f.Buf)
	return Frame{Buf: cp}
}

// Len returns the frame length in bytes.
func (f Frame) Len() int { return len(f.Buf) }

// DstMAC returns the destination MAC address. Caller must ensure
// f.Len() >= EthernetHeaderLen.
func (f Frame) DstMAC() MAC {
	var m MAC
	copy(m[:], f.Buf[0:MACLen])
	return m
}

// SrcMAC returns the source MAC address. Caller must ensure
// f.Len() >= EthernetHeaderLen.
func (f Frame) SrcMAC() MAC {
	var m MAC
	copy(m[:], f.Buf[MACLen:2*MACLen])
	return m
}

// etherTypeAt returns the 16-bit field at byte offset off.
func (f Frame) etherTypeAt(off int) EtherType {
	return EtherType(binary.BigEndian.Uint16(f.Buf[off : off+2]))
}

// vlanPresent reports whether the frame carries a single 802.1Q tag, and
// returns the byte offset at which the (possibly inner) ethertype and IP
// header begin.
func (f Frame) vlanPresent() (present bool, ipOffset int) {
	if f.etherTypeAt(2*MACLen) == EtherTypeVLAN {
		return true, EthernetHeaderLen + VLANTagLen
	}
	return false, EthernetHeaderLen
}

// PCP returns the 3-bit Priority Code Point from a single VLAN tag, and
// whether a VLAN tag is present at all.
func (f Frame) PCP() (pcp uint8, ok bool) {
	present, _ := f.vlanPresent()
	if !present {
		return 0, false
	}
	tci := binary.BigEndian.Uint16(f.Buf[2*MACLen+2 : 2*MACLen+4])
	return uint8(tci >> 13), true //nolint:gosec // 3-bit field
}

// payloadEtherType returns the ethertype that describes the IP/ARP payload,
// skipping one VLAN tag if present (spec.md §4.A).
func (f Frame) payloadEtherType() (EtherType, int) {
	present, off := f.vlanPresent()
	if !present {
		return f.etherTypeAt(2 * MACLen), off
	}
	return f.etherTypeAt(off - 2), off
}

// -------------------------------------------------------------------------
// TTL rewrite & classification (spec.md §4.A)
// -------------------------------------------------------------------------

// RewriteResult reports what RewriteTTL did to a frame.
type RewriteResult struct {
	// Expired is true if the frame's TTL/hop-limit was <=1 and the frame
	// must be dropped by the caller; no rewrite was performed.
	Expired bool

	// Priority is the QoS class the frame classifies into, 0-7
	// (spec.md §4.A DSCP/PCP table). Valid even when Expired.
	Priority uint8
}

// RewriteTTL inspects the frame's ethertype (skipping one VLAN tag),
// decrements an IPv4 TTL or IPv6 hop-limit in place, and for IPv4 updates
// the header checksum by the RFC 1624 incremental rule. Non-IP frames
// (ARP, unknown) are left untouched and report Priority 0, Expired false.
//
// vlanPriority selects PCP over DSCP when both are available and the port
// is configured VLAN-prioritized (spec.md §4.A: "PCP wins if the port is
// configured VLAN-prioritised; otherwise DSCP").
func (f Frame) RewriteTTL(vlanPriority bool) (RewriteResult, error) {
	if f.Len() < EthernetHeaderLen {
		return RewriteResult{}, ErrFrameTooShort
	}

	etherType, ipOff := f.payloadEtherType()
	pcp, hasPCP := f.PCP()

	switch etherType {
	case EtherTypeIPv4:
		return f.rewriteIPv4(ipOff, hasPCP && vlanPriority, pcp)
	case EtherTypeIPv6:
		return f.rewriteIPv6(ipOff, hasPCP && vlanPriority, pcp)
	default:
		// ARP or unknown ethertype: nothing to rewrite or classify.
		return RewriteResult{Priority: 0}, nil
	}
}

func (f Frame) rewriteIPv4(ipOff int, usePCP bool, pcp uint8) (RewriteResult, error) {
	if f.Len() < ipOff+IPv4HeaderMinLen {
		// Too short to carry a full IPv4 header: treat as non-IP.
		return RewriteResult{Priority: 0}, nil
	}

	hdr := f.Buf[ipOff : ipOff+IPv4HeaderMinLen]
	tos := hdr[1]
	ttl := hdr[8]

	priority := dscpPriority(tos >> 2)
	if usePCP {
		priority = pcp
	}

	if ttl <= 1 {
		return RewriteResult{Expired: true, Priority: priority}, nil
	}

	hdr[8] = ttl - 1
	oldChecksum := binary.BigEndian.Uint16(hdr[10:12])
	binary.BigEndian.PutUint16(hdr[10:12], incrementalChecksumTTLDecrement(oldChecksum))

	return RewriteResult{Priority: priority}, nil
}

func (f Frame) rewriteIPv6(ipOff int, usePCP bool, pcp uint8) (RewriteResult, error) {
	const ipv6HeaderMinLen = 40
	if f.Len() < ipOff+ipv6HeaderMinLen {
		return RewriteResult{Priority: 0}, nil
	}

	hdr := f.Buf[ipOff : ipOff+ipv6HeaderMinLen]
	// Traffic class occupies the low nibble of byte 0 and high nibble of
	// byte 1; DSCP is the upper 6 bits of that 8-bit traffic-class field.
	trafficClass := (hdr[0]&0x0F)<<4 | hdr[1]>>4
	hopLimit := hdr[7]

	priority := dscpPriority(trafficClass >> 2)
	if usePCP {
		priority = pcp
	}

	if hopLimit <= 1 {
		return RewriteResult{Expired: true, Priority: priority}, nil
	}

	hdr[7] = hopLimit - 1

	return RewriteResult{Priority: priority}, nil
}

// dscpPriority maps a 6-bit DSCP value to a 0-7 priority class per the
// spec.md §4.A table.
func dscpPriority(dscp uint8) uint8 {
	switch {
	case dscp >= 46:
		return 7
	case dscp >= 32:
		return 6
	case dscp >= 24:
		return 5
	case dscp >= 16:
		return 4
	case dscp >= 8:
		return 3
	default:
		return 0
	}
}

// incrementalChecksumTTLDecrement applies the RFC 1624 incremental update
// for a TTL decrement by one. Decrementing the TTL byte lowers the
// big-endian TTL/protocol word, and so the header's one's-complement sum,
// by 0x0100; the checksum (the complement of that sum) therefore grows by
// 0x0100, with the end-around carry folded back in, matching the Linux
// ip_decrease_ttl trick.
func incrementalChecksumTTLDecrement(oldChecksum uint16) uint16 {
	sum := uint32(oldChecksum) + uint32(0x0100)
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return uint16(sum)
}

// IPv4Checksum computes the one's-complement checksum over an IPv4 header
// (or any even-length byte slice) per the standard algorithm: sum all
// 16-bit words, fold carries, complement. Over a valid header with its
// checksum field included, the folded sum is 0xFFFF and the function
// returns 0.
func IPv4Checksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
