// Package ble implements the BLE control session for the Logitech Z407
// speaker puck: transport abstraction, the mandatory connect-time handshake,
// and command/event routing over the puck's two GATT characteristics.
package ble

import "context"

// Z407 GATT UUIDs. The puck exposes one writable command characteristic and
// one notify-only response characteristic under a single service.
const (
	ServiceUUID      = "0000fdc2-0000-1000-8000-00805f9b34fb"
	CommandCharUUID  = "c2e758b9-0e78-41e0-b0cb-98a593193fc5"
	ResponseCharUUID = "b84ac9c6-29c5-46d4-bba1-9d534784330f"

	// DeviceName is the local name the puck advertises.
	DeviceName = "Logitech Z407"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// ScanFilter selects advertisements during a scan. A device matches if it
// advertises the service UUID or carries the local name; empty fields are
// ignored. The Z407 does not always include its service UUID in
// advertisements, so matching on the name as well is necessary in practice.
type ScanFilter struct {
	ServiceUUID string
	LocalName   string
}

// Z407Filter returns the filter matching Z407 puck advertisements.
func Z407Filter() ScanFilter {
	return ScanFilter{ServiceUUID: ServiceUUID, LocalName: DeviceName}
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals matching the filter until ctx is
	// cancelled or times out.
	Scan(ctx context.Context, filter ScanFilter) ([]Device, error)
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
