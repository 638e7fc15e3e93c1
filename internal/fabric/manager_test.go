package fabric_test

import (
	"errors"
	"testing"

	"github.com/netfabric/govswitch/internal/fabric"
)

func TestManager_RegisterLookupRemove(t *testing.T) {
	t.Parallel()

	mgr := fabric.NewManager(testLogger())
	sw := fabric.NewSwitch(fabric.DefaultSwitchConfig(1), testLogger())

	if err := mgr.Register(sw); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := mgr.Register(sw); !errors.Is(err, fabric.ErrDuplicateSwitch) {
		t.Errorf("duplicate Register: err = %v, want ErrDuplicateSwitch", err)
	}

	got, ok := mgr.Lookup(1)
	if !ok || got != sw {
		t.Errorf("Lookup(1) = %v, %v, want the registered switch", got, ok)
	}

	if err := mgr.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := mgr.Remove(1); !errors.Is(err, fabric.ErrSwitchNotFound) {
		t.Errorf("Remove again: err = %v, want ErrSwitchNotFound", err)
	}
}

func TestManager_StateChanges(t *testing.T) {
	t.Parallel()

	mgr := fabric.NewManager(testLogger())
	sw := fabric.NewSwitch(fabric.DefaultSwitchConfig(7), testLogger())

	if err := mgr.Register(sw); err != nil {
		t.Fatalf("Register: %v", err)
	}

	select {
	case sc := <-mgr.StateChanges():
		if sc.Kind != fabric.SwitchAdded || sc.SwitchID != 7 {
			t.Errorf("StateChange = %+v, want {SwitchAdded, 7}", sc)
		}
	default:
		t.Errorf("expected a buffered state change notification")
	}
}

func TestManager_Switches(t *testing.T) {
	t.Parallel()

	mgr := fabric.NewManager(testLogger())
	for i := 1; i <= 3; i++ {
		if err := mgr.Register(fabric.NewSwitch(fabric.DefaultSwitchConfig(i), testLogger())); err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
	}

	snaps := mgr.Switches()
	if len(snaps) != 3 {
		t.Fatalf("Switches() = %d entries, want 3", len(snaps))
	}
}
