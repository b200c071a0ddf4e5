package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"z407ctl/internal/ble"
)

// fakeCharacteristic records writes and can notify subscribers.
type fakeCharacteristic struct {
	mu       sync.Mutex
	writes   [][]byte
	callback func([]byte)
	onWrite  func([]byte)
}

func (c *fakeCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	hook := c.onWrite
	c.mu.Unlock()
	if hook != nil {
		hook(cp)
	}
	return nil
}

func (c *fakeCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	return nil
}

func (c *fakeCharacteristic) notify(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

// fakeConnection mimics a connected puck that answers the handshake and
// echoes command confirmations.
type fakeConnection struct {
	cmdChar  *fakeCharacteristic
	respChar *fakeCharacteristic

	mu           sync.Mutex
	disconnectCb func()
}

// responses maps command opcodes to the notification frames the fake puck
// sends back: the handshake exchange, plus confirmation echoes for the
// commands the tests exercise.
var responses = map[[2]byte][][]byte{
	{0x84, 0x05}: {{0xd4, 0x05, 0x01}},
	{0x84, 0x00}: {{0xd4, 0x00, 0x01}, {0xd4, 0x00, 0x03}},
	{0x80, 0x02}: {{0xc0, 0x02}},
	{0x80, 0x00}: {{0xc0, 0x00}},
	{0x81, 0x02}: {{0xc1, 0x02}, {0xcf, 0x05}},
	{0x83, 0x00}: {{0xc3, 0x00}},
}

func newFakeConnection() *fakeConnection {
	conn := &fakeConnection{
		cmdChar:  &fakeCharacteristic{},
		respChar: &fakeCharacteristic{},
	}
	conn.cmdChar.onWrite = func(data []byte) {
		if len(data) != 2 {
			return
		}
		frames := responses[[2]byte{data[0], data[1]}]
		go func() {
			for _, f := range frames {
				conn.respChar.notify(f)
			}
		}()
	}
	return conn
}

func (c *fakeConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (ble.Characteristic, error) {
	switch charUUID {
	case ble.CommandCharUUID:
		return c.cmdChar, nil
	case ble.ResponseCharUUID:
		return c.respChar, nil
	}
	return nil, fmt.Errorf("fake: unknown characteristic %q", charUUID)
}

func (c *fakeConnection) Disconnect() error { return nil }

func (c *fakeConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// fakeAdapter implements ble.Adapter for command tests.
type fakeAdapter struct {
	devices []ble.Device
}

func (a *fakeAdapter) Enable() error { return nil }

func (a *fakeAdapter) Scan(_ context.Context, _ ble.ScanFilter) ([]ble.Device, error) {
	return a.devices, nil
}

func (a *fakeAdapter) Connect(_ context.Context, _ string) (ble.Connection, error) {
	return newFakeConnection(), nil
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "handshake_timeout_ms: 500\nscan_timeout_seconds: 1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, adapter ble.Adapter, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommandWithAdapter(func() ble.Adapter { return adapter })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", writeTestConfig(t)))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRegistersSubcommands(t *testing.T) {
	cmd := newRootCommand()
	want := []string{"scan", "volume", "bass", "play", "next", "prev", "source", "sound", "pairing", "factory-reset", "watch"}
	have := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		have[sub.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVolumeUpConfirmed(t *testing.T) {
	adapter := &fakeAdapter{}
	out, err := runCLI(t, adapter, "volume", "up", "--address", "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("volume up error = %v (output: %s)", err, out)
	}
	if !strings.Contains(out, "VOLUME_UP confirmed") {
		t.Errorf("output = %q, want confirmation", out)
	}
}

func TestSourceAuxReportsSwitch(t *testing.T) {
	adapter := &fakeAdapter{}
	out, err := runCLI(t, adapter, "source", "aux", "--address", "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("source aux error = %v (output: %s)", err, out)
	}
	if !strings.Contains(out, "input changed: SWITCHED_AUX") {
		t.Errorf("output = %q, want switch completion", out)
	}
}

func TestOneShotWithoutConfirmationStillSucceeds(t *testing.T) {
	// PLAY_PAUSE gets no echo from this fake puck; the command must still
	// exit zero and say so.
	adapter := &fakeAdapter{}
	out, err := runCLI(t, adapter, "play", "--address", "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("play error = %v (output: %s)", err, out)
	}
	if !strings.Contains(out, "no confirmation") {
		t.Errorf("output = %q, want sent-without-confirmation notice", out)
	}
}

func TestOneShotScansWhenNoAddress(t *testing.T) {
	adapter := &fakeAdapter{devices: []ble.Device{
		{Name: ble.DeviceName, Address: "AA:BB:CC:DD:EE:FF", RSSI: -40},
	}}
	out, err := runCLI(t, adapter, "bass", "up")
	if err != nil {
		t.Fatalf("bass up error = %v (output: %s)", err, out)
	}
	if !strings.Contains(out, "BASS_UP confirmed") {
		t.Errorf("output = %q, want confirmation", out)
	}
}

func TestOneShotFailsWhenNoPuckFound(t *testing.T) {
	adapter := &fakeAdapter{} // scan finds nothing
	_, err := runCLI(t, adapter, "volume", "up")
	if err == nil || !strings.Contains(err.Error(), "no Z407 puck") {
		t.Errorf("error = %v, want no-puck failure", err)
	}
}

func TestScanPrintsTable(t *testing.T) {
	adapter := &fakeAdapter{devices: []ble.Device{
		{Name: ble.DeviceName, Address: "AA:BB:CC:DD:EE:FF", RSSI: -40},
	}}
	out, err := runCLI(t, adapter, "scan")
	if err != nil {
		t.Fatalf("scan error = %v", err)
	}
	if !strings.Contains(out, "AA:BB:CC:DD:EE:FF") || !strings.Contains(out, ble.DeviceName) {
		t.Errorf("scan output = %q, want device row", out)
	}
}

func TestFactoryResetRequiresForce(t *testing.T) {
	adapter := &fakeAdapter{}
	_, err := runCLI(t, adapter, "factory-reset", "--address", "AA:BB:CC:DD:EE:FF")
	if err == nil || !strings.Contains(err.Error(), "--force") {
		t.Errorf("error = %v, want force-required failure", err)
	}
}

func TestFactoryResetWithForce(t *testing.T) {
	adapter := &fakeAdapter{}
	out, err := runCLI(t, adapter, "factory-reset", "--force", "--address", "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("factory-reset --force error = %v (output: %s)", err, out)
	}
	if !strings.Contains(out, "FACTORY_RESET confirmed") {
		t.Errorf("output = %q, want confirmation", out)
	}
}
