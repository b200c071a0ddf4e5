package protocol

import "fmt"

// EventType identifies a decoded notification from the puck.
type EventType uint8

const (
	// Handshake responses, 3-byte frames with prefix 0xd4.
	EventInitiateResponse EventType = iota
	EventAcknowledgeResponse
	EventConnected

	// Command confirmations, 2-byte frames. Best-effort echoes of a
	// previously written command.
	EventBassUp
	EventBassDown
	EventVolumeUp
	EventVolumeDown
	EventPlayPause
	EventNextTrack
	EventPrevTrack
	EventSwitchBluetooth
	EventSwitchAux
	EventSwitchUSB
	EventPairing
	EventFactoryReset
	EventUnknown1
	EventSound1
	EventSound2
	EventSound3

	// Switch-completion notifications. The puck emits these only when the
	// input actually changed; their absence after a switch command means
	// the target was already the active source, not a failure.
	EventSwitchedBluetooth
	EventSwitchedAux
	EventSwitchedUSB

	// EventUnrecognized carries any frame the tables don't know. The puck's
	// firmware has undocumented codes; decoding never fails on them.
	EventUnrecognized
)

var eventNames = map[EventType]string{
	EventInitiateResponse:    "INITIATE_RESPONSE",
	EventAcknowledgeResponse: "ACKNOWLEDGE_RESPONSE",
	EventConnected:           "CONNECTED",
	EventBassUp:              "BASS_UP",
	EventBassDown:            "BASS_DOWN",
	EventVolumeUp:            "VOLUME_UP",
	EventVolumeDown:          "VOLUME_DOWN",
	EventPlayPause:           "PLAY_PAUSE",
	EventNextTrack:           "NEXT_TRACK",
	EventPrevTrack:           "PREV_TRACK",
	EventSwitchBluetooth:     "SWITCH_BLUETOOTH",
	EventSwitchAux:           "SWITCH_AUX",
	EventSwitchUSB:           "SWITCH_USB",
	EventPairing:             "PAIRING",
	EventFactoryReset:        "FACTORY_RESET",
	EventUnknown1:            "UNKNOWN_1",
	EventSound1:              "SOUND_1",
	EventSound2:              "SOUND_2",
	EventSound3:              "SOUND_3",
	EventSwitchedBluetooth:   "SWITCHED_BLUETOOTH",
	EventSwitchedAux:         "SWITCHED_AUX",
	EventSwitchedUSB:         "SWITCHED_USB",
	EventUnrecognized:        "UNRECOGNIZED",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "INVALID"
}

// Event is a decoded notification. Raw holds a copy of the frame as it
// arrived, which is the only payload an UNRECOGNIZED event has.
type Event struct {
	Type EventType
	Raw  []byte
}

func (e Event) String() string {
	if e.Type == EventUnrecognized {
		return fmt.Sprintf("UNRECOGNIZED(%x)", e.Raw)
	}
	return e.Type.String()
}

// handshakeFrames maps the trailing two bytes of a 0xd4-prefixed 3-byte
// frame to its event.
var handshakeFrames = map[[2]byte]EventType{
	{0x05, 0x01}: EventInitiateResponse,
	{0x00, 0x01}: EventAcknowledgeResponse,
	{0x00, 0x03}: EventConnected,
}

// frames maps a (prefix, code) pair of a 2-byte notification to its event.
// The 0xc5 block is inverted relative to the sound command opcodes (03 is
// SOUND_1, 01 is SOUND_3); this is how the firmware behaves, not a typo.
var frames = map[[2]byte]EventType{
	{0xc0, 0x00}: EventBassUp,
	{0xc0, 0x01}: EventBassDown,
	{0xc0, 0x02}: EventVolumeUp,
	{0xc0, 0x03}: EventVolumeDown,
	{0xc0, 0x04}: EventPlayPause,
	{0xc0, 0x05}: EventNextTrack,
	{0xc0, 0x06}: EventPrevTrack,
	{0xc1, 0x01}: EventSwitchBluetooth,
	{0xc1, 0x02}: EventSwitchAux,
	{0xc1, 0x03}: EventSwitchUSB,
	{0xc2, 0x00}: EventPairing,
	{0xc3, 0x00}: EventFactoryReset,
	{0xc5, 0x00}: EventUnknown1,
	{0xc5, 0x01}: EventSound3,
	{0xc5, 0x02}: EventSound2,
	{0xc5, 0x03}: EventSound1,
	{0xcf, 0x04}: EventSwitchedBluetooth,
	{0xcf, 0x05}: EventSwitchedAux,
	{0xcf, 0x06}: EventSwitchedUSB,
}

// Decode maps a raw notification frame to its event. It is total: any frame
// the tables don't cover, including short or over-long ones, comes back as
// EventUnrecognized with the bytes attached.
func Decode(data []byte) Event {
	raw := make([]byte, len(data))
	copy(raw, data)
	ev := Event{Type: EventUnrecognized, Raw: raw}

	switch {
	case len(data) == 3 && data[0] == 0xd4:
		if t, ok := handshakeFrames[[2]byte{data[1], data[2]}]; ok {
			ev.Type = t
		}
	case len(data) == 2:
		if t, ok := frames[[2]byte{data[0], data[1]}]; ok {
			ev.Type = t
		}
	}
	return ev
}
