package fabric_test

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/netfabric/govswitch/internal/fabric"
)

func mustMAC(t *testing.T, s string) fabric.MAC {
	t.Helper()
	m, err := fabric.ParseMAC(s)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", s, err)
	}
	return m
}

func TestMACTable_InsertAndLookup(t *testing.T) {
	t.Parallel()

	table := fabric.NewMACTable(16)
	mac := mustMAC(t, "02:00:00:00:00:01")

	if err := table.Insert(mac, 3, false, ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	port, err := table.Lookup(mac)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if port != 3 {
		t.Errorf("Lookup port = %d, want 3", port)
	}
}

func TestMACTable_LookupMiss(t *testing.T) {
	t.Parallel()

	table := fabric.NewMACTable(16)
	mac := mustMAC(t, "02:00:00:00:00:02")

	if _, err := table.Lookup(mac); !errors.Is(err, fabric.ErrMiss) {
		t.Errorf("Lookup unknown mac: err = %v, want ErrMiss", err)
	}
}

func TestMACTable_Aging(t *testing.T) {
	t.Parallel()

	table := fabric.NewMACTable(16)
	now := time.Unix(1_700_000_000, 0)
	table.SetClock(func() time.Time { return now })

	mac := mustMAC(t, "02:00:00:00:00:03")
	if err := table.Insert(mac, 1, false, ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	now = now.Add(fabric.AgingInterval - time.Second)
	if _, err := table.Lookup(mac); err != nil {
		t.Errorf("Lookup just before aging interval: %v, want hit", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := table.Lookup(mac); !errors.Is(err, fabric.ErrMiss) {
		t.Errorf("Lookup after aging interval: err = %v, want ErrMiss", err)
	}
}

func TestMACTable_StaticEntryResistsLearning(t *testing.T) {
	t.Parallel()

	table := fabric.NewMACTable(16)
	mac := mustMAC(t, "02:00:00:00:00:04")

	if err := table.Insert(mac, 1, true, "static uplink"); err != nil {
		t.Fatalf("static insert: %v", err)
	}
	if err := table.Insert(mac, 2, false, ""); err != nil {
		t.Fatalf("learning insert: %v", err)
	}

	port, err := table.Lookup(mac)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if port != 1 {
		t.Errorf("learning overwrote static entry: port = %d, want 1", port)
	}
}

func TestMACTable_FullTableRejectsInsert(t *testing.T) {
	t.Parallel()

	table := fabric.NewMACTable(4)
	for i := 0; i < 4; i++ {
		mac := fabric.MAC{0x02, 0, 0, 0, 0, byte(i + 1)}
		if err := table.Insert(mac, i, false, ""); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	overflow := fabric.MAC{0x02, 0, 0, 0, 0, 0xFF}
	if err := table.Insert(overflow, 9, false, ""); !errors.Is(err, fabric.ErrTableFull) {
		t.Errorf("insert into full table: err = %v, want ErrTableFull", err)
	}
}

func TestMACTable_LoadStatic(t *testing.T) {
	t.Parallel()

	table := fabric.NewMACTable(16)
	data := strings.Join([]string{
		"# static uplinks",
		"02:00:00:00:00:01 1 uplink-a",
		"",
		"not-a-mac-line garbage",
		"02:00:00:00:00:02 99 unconfigured-port",
		"02:00:00:00:00:03 2",
	}, "\n")

	validPort := func(p int) bool { return p == 1 || p == 2 }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := table.LoadStatic(strings.NewReader(data), validPort, logger)
	if err != nil {
		t.Fatalf("LoadStatic: %v", err)
	}
	if n != 2 {
		t.Errorf("LoadStatic loaded = %d, want 2", n)
	}

	port, err := table.Lookup(mustMAC(t, "02:00:00:00:00:01"))
	if err != nil || port != 1 {
		t.Errorf("02:...:01 port = %d, err = %v, want 1, nil", port, err)
	}

	if _, err := table.Lookup(mustMAC(t, "02:00:00:00:00:02")); !errors.Is(err, fabric.ErrMiss) {
		t.Errorf("out-of-range port line should not have loaded, got err = %v", err)
	}
}
