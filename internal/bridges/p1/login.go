package p1

import "fmt"

// Login packet layout.
const (
	// LoginPacketSize is the fixed size of the login request in bytes.
	LoginPacketSize = 80

	// MaxPinLength is the longest PIN that fits the login PIN field.
	MaxPinLength = 31

	// loginUsername is the fixed account name the device expects.
	loginUsername = "bblp"

	// loginUsernameOffset is where the username starts.
	loginUsernameOffset = 16

	// loginPinOffset is where the PIN field starts. The field runs to the end of the packet.
	loginPinOffset = 48
)

// loginVersion holds the protocol version words sent at the start of every login.
var loginVersion = [...]byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x30, 0x00, 0x00}

// BuildLoginPacket assembles the 80-byte login request for the given PIN.
//
// Layout:
//
//	[0, 16)   protocol version fields (0x40 00 00 00 00 30 00 00, then zeros)
//	[16, 20)  ASCII "bblp"
//	[20, 48)  zero padding
//	[48, 80)  PIN, left-justified, zero-padded
//
// Parameters:
//   - pin: Device access code, at most 31 bytes
//
// Returns:
//   - [LoginPacketSize]byte: The encoded packet
//   - error: ErrPinTooLong if the PIN does not fit
func BuildLoginPacket(pin string) ([LoginPacketSize]byte, error) {
	var packet [LoginPacketSize]byte
	if len(pin) > MaxPinLength {
		return packet, fmt.Errorf("%w: got %d bytes", ErrPinTooLong, len(pin))
	}

	copy(packet[:], loginVersion[:])
	copy(packet[loginUsernameOffset:], loginUsername)
	copy(packet[loginPinOffset:], pin)

	return packet, nil
}
