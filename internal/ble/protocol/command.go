// Package protocol implements the Z407 puck wire protocol: the 2-byte
// command opcodes written to the command characteristic and the 2/3-byte
// notification frames pushed on the response characteristic. Both mappings
// are fixed by the device firmware; the tables here are immutable.
package protocol

// Command is a logical command accepted by the puck. The set is closed:
// every variant has exactly one 2-byte opcode and no two variants share one.
type Command uint8

const (
	// Handshake-only commands. The puck rejects everything else until the
	// initiate/acknowledge exchange has completed.
	CmdInitiate Command = iota
	CmdAcknowledge

	CmdVolumeUp
	CmdVolumeDown
	CmdBassUp
	CmdBassDown
	CmdPlayPause
	CmdNextTrack
	CmdPrevTrack
	CmdSwitchBluetooth
	CmdSwitchAux
	CmdSwitchUSB
	CmdSound1
	CmdSound2
	CmdSound3
	CmdPairing
	CmdFactoryReset
	// CmdUnknown1 shares the 0x85 prefix with the sound presets. Its effect
	// on the puck is undocumented; it is kept because the device confirms it.
	CmdUnknown1

	numCommands
)

// opcodes is the command→wire table. Indexed by Command, built once.
var opcodes = [numCommands][2]byte{
	CmdInitiate:        {0x84, 0x05},
	CmdAcknowledge:     {0x84, 0x00},
	CmdVolumeUp:        {0x80, 0x02},
	CmdVolumeDown:      {0x80, 0x03},
	CmdBassUp:          {0x80, 0x00},
	CmdBassDown:        {0x80, 0x01},
	CmdPlayPause:       {0x80, 0x04},
	CmdNextTrack:       {0x80, 0x05},
	CmdPrevTrack:       {0x80, 0x06},
	CmdSwitchBluetooth: {0x81, 0x01},
	CmdSwitchAux:       {0x81, 0x02},
	CmdSwitchUSB:       {0x81, 0x03},
	CmdSound1:          {0x85, 0x01},
	CmdSound2:          {0x85, 0x02},
	CmdSound3:          {0x85, 0x03},
	CmdPairing:         {0x82, 0x00},
	CmdFactoryReset:    {0x83, 0x00},
	CmdUnknown1:        {0x85, 0x00},
}

var commandNames = [numCommands]string{
	CmdInitiate:        "INITIATE",
	CmdAcknowledge:     "ACKNOWLEDGE",
	CmdVolumeUp:        "VOLUME_UP",
	CmdVolumeDown:      "VOLUME_DOWN",
	CmdBassUp:          "BASS_UP",
	CmdBassDown:        "BASS_DOWN",
	CmdPlayPause:       "PLAY_PAUSE",
	CmdNextTrack:       "NEXT_TRACK",
	CmdPrevTrack:       "PREV_TRACK",
	CmdSwitchBluetooth: "SWITCH_BLUETOOTH",
	CmdSwitchAux:       "SWITCH_AUX",
	CmdSwitchUSB:       "SWITCH_USB",
	CmdSound1:          "SOUND_1",
	CmdSound2:          "SOUND_2",
	CmdSound3:          "SOUND_3",
	CmdPairing:         "PAIRING",
	CmdFactoryReset:    "FACTORY_RESET",
	CmdUnknown1:        "UNKNOWN_1",
}

// Commands returns every defined command, handshake commands included.
func Commands() []Command {
	cmds := make([]Command, numCommands)
	for i := range cmds {
		cmds[i] = Command(i)
	}
	return cmds
}

// Opcode returns the fixed 2-byte wire encoding of c. The mapping is total
// over the defined commands; there is no error path.
func (c Command) Opcode() [2]byte {
	return opcodes[c]
}

// IsHandshake reports whether c is one of the two handshake-only commands
// that may be written before the session is ready.
func (c Command) IsHandshake() bool {
	return c == CmdInitiate || c == CmdAcknowledge
}

func (c Command) String() string {
	if c >= numCommands {
		return "INVALID"
	}
	return commandNames[c]
}

// Confirmation returns the notification event the puck publishes as a
// best-effort echo of c, and whether one exists. Handshake commands have
// dedicated response frames instead and return false. Absence of the echo
// on the wire is never an error: the puck silently drops commands it cannot
// act on (volume while no audio is active, for example).
func (c Command) Confirmation() (EventType, bool) {
	ev, ok := confirmations[c]
	return ev, ok
}

var confirmations = map[Command]EventType{
	CmdVolumeUp:        EventVolumeUp,
	CmdVolumeDown:      EventVolumeDown,
	CmdBassUp:          EventBassUp,
	CmdBassDown:        EventBassDown,
	CmdPlayPause:       EventPlayPause,
	CmdNextTrack:       EventNextTrack,
	CmdPrevTrack:       EventPrevTrack,
	CmdSwitchBluetooth: EventSwitchBluetooth,
	CmdSwitchAux:       EventSwitchAux,
	CmdSwitchUSB:       EventSwitchUSB,
	CmdSound1:          EventSound1,
	CmdSound2:          EventSound2,
	CmdSound3:          EventSound3,
	CmdPairing:         EventPairing,
	CmdFactoryReset:    EventFactoryReset,
	CmdUnknown1:        EventUnknown1,
}
