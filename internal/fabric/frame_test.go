package fabric_test

import (
	"encoding/binary"
	"testing"

	"github.com/netfabric/govswitch/internal/fabric"
)

// buildIPv4Frame constructs a minimal Ethernet+IPv4 frame with the given
// TTL and DSCP, and a checksum that validates (sums to 0xFFFF).
func buildIPv4Frame(ttl, dscp byte) []byte {
	buf := make([]byte, fabric.EthernetHeaderLen+fabric.IPv4HeaderMinLen)
	binary.BigEndian.PutUint16(buf[12:14], uint16(fabric.EtherTypeIPv4))

	hdr := buf[fabric.EthernetHeaderLen:]
	hdr[0] = 0x45 // version 4, IHL 5
	hdr[1] = dscp << 2
	hdr[8] = ttl
	hdr[9] = 17 // UDP

	binary.BigEndian.PutUint16(hdr[10:12], 0)
	checksum := fabric.IPv4Checksum(hdr[:fabric.IPv4HeaderMinLen])
	binary.BigEndian.PutUint16(hdr[10:12], checksum)

	return buf
}

func TestRewriteTTL_ChecksumValid(t *testing.T) {
	t.Parallel()

	buf := buildIPv4Frame(64, 0)
	f := fabric.NewFrame(buf)

	result, err := f.RewriteTTL(false)
	if err != nil {
		t.Fatalf("RewriteTTL: %v", err)
	}
	if result.Expired {
		t.Fatalf("RewriteTTL: Expired = true, want false")
	}

	hdr := buf[fabric.EthernetHeaderLen : fabric.EthernetHeaderLen+fabric.IPv4HeaderMinLen]
	if hdr[8] != 63 {
		t.Errorf("TTL = %d, want 63", hdr[8])
	}

	if sum := fabric.IPv4Checksum(hdr); sum != 0 {
		t.Errorf("checksum after rewrite = %#04x, want 0 (ones'-complement sum 0xffff)", sum)
	}
}

func TestRewriteTTL_RepeatedRewrites(t *testing.T) {
	t.Parallel()

	buf := buildIPv4Frame(100, 0)
	f := fabric.NewFrame(buf)

	for i := 0; i < 32; i++ {
		result, err := f.RewriteTTL(false)
		if err != nil {
			t.Fatalf("rewrite %d: %v", i, err)
		}
		if result.Expired {
			t.Fatalf("rewrite %d: unexpectedly expired", i)
		}

		hdr := buf[fabric.EthernetHeaderLen : fabric.EthernetHeaderLen+fabric.IPv4HeaderMinLen]
		if sum := fabric.IPv4Checksum(hdr); sum != 0 {
			t.Fatalf("rewrite %d: checksum = %#04x, want 0 (ones'-complement sum 0xffff)", i, sum)
		}
	}
}

func TestRewriteTTL_Expiry(t *testing.T) {
	t.Parallel()

	buf := buildIPv4Frame(1, 0)
	f := fabric.NewFrame(buf)

	result, err := f.RewriteTTL(false)
	if err != nil {
		t.Fatalf("RewriteTTL: %v", err)
	}
	if !result.Expired {
		t.Errorf("TTL=1: Expired = false, want true")
	}
}

func TestRewriteTTL_DSCPClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dscp byte
		want uint8
	}{
		{0, 0},
		{8, 3},
		{16, 4},
		{24, 5},
		{32, 6},
		{46, 7},
		{63, 7},
	}

	for _, tt := range tests {
		buf := buildIPv4Frame(64, tt.dscp)
		f := fabric.NewFrame(buf)

		result, err := f.RewriteTTL(false)
		if err != nil {
			t.Fatalf("dscp %d: RewriteTTL: %v", tt.dscp, err)
		}
		if result.Priority != tt.want {
			t.Errorf("dscp %d: Priority = %d, want %d", tt.dscp, result.Priority, tt.want)
		}
	}
}

func TestFrame_BroadcastDetection(t *testing.T) {
	t.Parallel()

	buf := buildIPv4Frame(64, 0)
	copy(buf[0:6], fabric.BroadcastMAC[:])
	f := fabric.NewFrame(buf)

	if !f.DstMAC().IsBroadcast() {
		t.Errorf("DstMAC().IsBroadcast() = false, want true")
	}
}

func TestFrame_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	buf := buildIPv4Frame(64, 0)
	f := fabric.NewFrame(buf)
	clone := f.Clone()

	clone.Buf[0] = 0xAB
	if f.Buf[0] == 0xAB {
		t.Errorf("mutating clone affected original buffer")
	}
}
