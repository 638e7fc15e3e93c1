package fabric

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AgingInterval is the default MAC entry lifetime (spec.md §3: 300s).
const AgingInterval = 300 * time.Second

// Sentinel errors for MACTable operations.
var (
	// ErrTableFull indicates no free or expired slot could be found for
	// an insert (spec.md §4.B "fails only if the table is full of valid
	// non-expired entries").
	ErrTableFull = errors.New("mac table full")

	// ErrMiss is returned by Lookup when no valid entry matches.
	ErrMiss = errors.New("mac table miss")
)

// MACEntry is a single slot in the MAC table (spec.md §3).
type MACEntry struct {
	MAC      MAC
	Port     int
	LastSeen time.Time
	Valid    bool
	// Static marks entries loaded from a static table file: learning never
	// overwrites a static entry (spec.md §4.B).
	Static bool
	// Comment carries the free-text third column of a static-table line,
	// preserved for operational visibility but otherwise uninterpreted
	// (SPEC_FULL.md §7, grounded on original_source's load_mac_table).
	Comment string
}

// MACTable is a fixed-capacity, open-addressed associative structure
// mapping MAC addresses to port indices (spec.md §3, §4.B).
//
// Concurrency: guarded by a single mutex, matching spec.md §5's allowance
// ("a table-level mutex ... so long as the ordering guarantee above
// holds"). A reader that observes a write mid-flight at worst fails the
// MAC equality check and is treated as a miss, never a misroute.
type MACTable struct {
	mu      sync.Mutex
	entries []MACEntry
	cap     int
	aging   time.Duration
	now     func() time.Time
}

// NewMACTable creates a table with the given fixed capacity (spec.md §3:
// typically 256 or 1024).
func NewMACTable(capacity int) *MACTable {
	return &MACTable{
		entries: make([]MACEntry, capacity),
		cap:     capacity,
		aging:   AgingInterval,
		now:     time.Now,
	}
}

// SetClock overrides the table's time source. Exposed for deterministic
// aging tests; production callers never need it.
func (t *MACTable) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// bucket hashes mac to a starting slot index via a simple polynomial hash
// over its 6 bytes (spec.md §4.B).
func (t *MACTable) bucket(mac MAC) int {
	var h uint32 = 2166136261
	for _, b := range mac {
		h = h*16777619 ^ uint32(b)
	}
	return int(h) % t.cap
}

// Insert associates mac with port, learning it at the current time.
// Static loads set static=true so later dynamic learning cannot overwrite
// the entry (spec.md §4.B: "static entries are loaded, learning is
// suppressed for those MACs").
func (t *MACTable) Insert(mac MAC, port int, static bool, comment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(mac, port, static, comment)
}

func (t *MACTable) insertLocked(mac MAC, port int, static bool, comment string) error {
	start := t.bucket(mac)
	now := t.now()

	firstFree := -1
	for i := range t.cap {
		idx := (start + i) % t.cap
		e := &t.entries[idx]

		if !e.Valid {
			if firstFree == -1 {
				firstFree = idx
			}
			continue
		}

		if e.MAC == mac {
			if e.Static && !static {
				// A pinned static entry is never overwritten by learning.
				return nil
			}
			t.writeEntry(idx, mac, port, static, comment, now)
			return nil
		}

		if now.Sub(e.LastSeen) > t.aging {
			e.Valid = false
			if firstFree == -1 {
				firstFree = idx
			}
		}
	}

	if firstFree == -1 {
		return fmt.Errorf("insert %s: %w", mac, ErrTableFull)
	}

	t.writeEntry(firstFree, mac, port, static, comment, now)
	return nil
}

func (t *MACTable) writeEntry(idx int, mac MAC, port int, static bool, comment string, now time.Time) {
	t.entries[idx] = MACEntry{
		MAC:      mac,
		Port:     port,
		LastSeen: now,
		Valid:    true,
		Static:   static,
		Comment:  comment,
	}
}

// Lookup returns the egress port for mac, or ErrMiss if no valid,
// unaged entry matches (spec.md §4.B).
func (t *MACTable) Lookup(mac MAC) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := t.bucket(mac)
	now := t.now()

	for i := range t.cap {
		idx := (start + i) % t.cap
		e := &t.entries[idx]

		if !e.Valid {
			return 0, ErrMiss
		}

		if e.MAC != mac {
			continue
		}

		if now.Sub(e.LastSeen) > t.aging {
			e.Valid = false
			return 0, ErrMiss
		}

		return e.Port, nil
	}

	return 0, ErrMiss
}

// Age scans all entries and invalidates any whose age exceeds the aging
// interval. Called opportunistically by the forwarding loop, not by a
// dedicated thread (spec.md §4.B).
func (t *MACTable) Age() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	invalidated := 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid && now.Sub(e.LastSeen) > t.aging {
			e.Valid = false
			invalidated++
		}
	}
	return invalidated
}

// Snapshot returns a copy of all currently valid entries, for monitoring.
func (t *MACTable) Snapshot() []MACEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]MACEntry, 0, t.cap)
	for _, e := range t.entries {
		if e.Valid {
			out = append(out, e)
		}
	}
	return out
}

// -------------------------------------------------------------------------
// Static table file loading (spec.md §4.B, §6)
// -------------------------------------------------------------------------

// PortValidator reports whether portIndex is within range and configured,
// so LoadStatic can refuse entries targeting an unconfigured port.
type PortValidator func(portIndex int) bool

// LoadStatic parses lines of the form "MAC port-index [comment]" from r,
// ignoring blank lines and lines starting with '#'. Unparseable lines and
// out-of-range port indices are skipped with a warning logged via logger,
// matching spec.md §6 ("unparseable lines emit a warning and are skipped").
// Returns the count of entries successfully loaded.
func (t *MACTable) LoadStatic(r io.Reader, validPort PortValidator, logger *slog.Logger) (int, error) {
	scanner := bufio.NewScanner(r)
	loaded := 0
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		mac, port, comment, err := parseStaticLine(line)
		if err != nil {
			logger.Warn("skipping unparseable static MAC line",
				slog.Int("line", lineNo), slog.String("text", line), slog.String("error", err.Error()))
			continue
		}

		if validPort != nil && !validPort(port) {
			logger.Warn("skipping static MAC line: port out of range or unconfigured",
				slog.Int("line", lineNo), slog.Int("port", port))
			continue
		}

		if err := t.Insert(mac, port, true, comment); err != nil {
			logger.Warn("skipping static MAC line: table full",
				slog.Int("line", lineNo), slog.String("error", err.Error()))
			continue
		}

		loaded++
	}

	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("read static mac table: %w", err)
	}

	return loaded, nil
}

// parseStaticLine parses "XX:XX:XX:XX:XX:XX port-index description-token...".
func parseStaticLine(line string) (MAC, int, string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return MAC{}, 0, "", fmt.Errorf("expected at least 2 fields, got %d", len(fields))
	}

	mac, err := ParseMAC(fields[0])
	if err != nil {
		return MAC{}, 0, "", err
	}

	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return MAC{}, 0, "", fmt.Errorf("parse port index %q: %w", fields[1], err)
	}

	comment := ""
	if len(fields) > 2 {
		comment = strings.Join(fields[2:], " ")
	}

	return mac, port, comment, nil
}

// ParseMAC parses a colon-separated hex MAC address string.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	parts := strings.Split(s, ":")
	if len(parts) != MACLen {
		return m, fmt.Errorf("mac %q: expected %d colon-separated octets, got %d", s, MACLen, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return m, fmt.Errorf("mac %q: octet %d: %w", s, i, err)
		}
		m[i] = byte(v)
	}
	return m, nil
}
