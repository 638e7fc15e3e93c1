package server_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/netfabric/govswitch/internal/fabric"
	"github.com/netfabric/govswitch/internal/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *fabric.Manager) {
	t.Helper()

	mgr := fabric.NewManager(testLogger())
	sw := fabric.NewSwitch(fabric.DefaultSwitchConfig(1), testLogger())
	adapter := fabric.NewLoopbackAdapter()
	if _, err := sw.AddPort(0, fabric.PortKindHost, "host", adapter, false); err != nil {
		t.Fatalf("AddPort: %v", err)
	}
	if err := mgr.Register(sw); err != nil {
		t.Fatalf("Register: %v", err)
	}

	srv := server.New(mgr, testLogger())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, mgr
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, ts.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
}

func TestListSwitches(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	var switches []struct {
		SwitchID  int `json:"switch_id"`
		PortCount int `json:"port_count"`
	}
	getJSON(t, ts.URL+"/switches", &switches)

	if len(switches) != 1 {
		t.Fatalf("len(switches) = %d, want 1", len(switches))
	}
	if switches[0].SwitchID != 1 {
		t.Errorf("SwitchID = %d, want 1", switches[0].SwitchID)
	}
	if switches[0].PortCount != 1 {
		t.Errorf("PortCount = %d, want 1", switches[0].PortCount)
	}
}

func TestGetSwitch_NotFound(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := getJSON(t, ts.URL+"/switches/99", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetSwitch_BadID(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := getJSON(t, ts.URL+"/switches/not-a-number", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetSwitch_Found(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	var detail struct {
		SwitchID int    `json:"switch_id"`
		Instance string `json:"instance_id"`
	}
	resp := getJSON(t, ts.URL+"/switches/1", &detail)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if detail.SwitchID != 1 {
		t.Errorf("SwitchID = %d, want 1", detail.SwitchID)
	}
	if detail.Instance == "" {
		t.Errorf("Instance is empty, want a uuid string")
	}
}

func TestPorts(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	var ports []struct {
		Index int    `json:"index"`
		Name  string `json:"name"`
		Kind  string `json:"kind"`
	}
	getJSON(t, ts.URL+"/switches/1/ports", &ports)

	if len(ports) != 1 {
		t.Fatalf("len(ports) = %d, want 1", len(ports))
	}
	if ports[0].Kind != "host" {
		t.Errorf("Kind = %q, want %q", ports[0].Kind, "host")
	}
}

func TestMACTable(t *testing.T) {
	t.Parallel()
	ts, mgr := newTestServer(t)

	sw, ok := mgr.Lookup(1)
	if !ok {
		t.Fatalf("switch 1 not registered")
	}
	mac, err := fabric.ParseMAC("02:00:00:00:00:01")
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}
	if err := sw.MACTable().Insert(mac, 0, true, "test"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var entries []fabric.MACEntry
	getJSON(t, ts.URL+"/switches/1/mac-table", &entries)

	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].MAC != mac {
		t.Errorf("MAC = %v, want %v", entries[0].MAC, mac)
	}
}
