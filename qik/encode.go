package qik

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMotor is returned for a motor index other than Motor0 or Motor1
	ErrInvalidMotor = errors.New("invalid motor")
	// ErrInvalidDirection is returned for a direction other than Forward or Reverse
	ErrInvalidDirection = errors.New("invalid direction")
)

// EncodeMotorSpeed returns the two wire bytes for a speed command.
// Speeds up to 127 use the normal packet, higher speeds the fast packet with speed-127 as argument.
func EncodeMotorSpeed(m Motor, d Direction, speed uint8) ([]byte, error) {
	if m > Motor1 {
		return nil, ErrInvalidMotor
	}
	if d > Reverse {
		return nil, ErrInvalidDirection
	}
	p := motorPackets[m][d]
	if speed > maxNormalSpeed {
		return []byte{byte(p[1]), speed - maxNormalSpeed}, nil
	}
	return []byte{byte(p[0]), speed}, nil
}

// EncodeCoast returns the single coast byte of a motor
func EncodeCoast(m Motor) ([]byte, error) {
	if m > Motor1 {
		return nil, ErrInvalidMotor
	}
	return []byte{byte(coastPackets[m])}, nil
}

// EncodeStop is a forward command at speed 0, which is not the same as coasting
func EncodeStop(m Motor) ([]byte, error) {
	return EncodeMotorSpeed(m, Forward, 0)
}

// EncodeGetConfig returns [getConfig, key]
func EncodeGetConfig(p ConfigParam) []byte {
	return []byte{byte(getConfigPacket), byte(p)}
}

// EncodeSetConfig returns [setConfig, key, value]
func EncodeSetConfig(p ConfigParam, v uint8) []byte {
	return []byte{byte(setConfigPacket), byte(p), v}
}

// DecodeSpeed is the inverse of EncodeMotorSpeed. Arguments no encoder produces are rejected.
func DecodeSpeed(b []byte) (m Motor, d Direction, speed uint8, err error) {
	if len(b) != 2 {
		return 0, 0, 0, errors.New("speed command must be 2 bytes")
	}
	c := CommandType(b[0])
	if c < motor0ForwardPacket || c > motor1ReverseFastPacket {
		return 0, 0, 0, errors.New("not a motor speed command: " + c.String())
	}
	off := byte(c - motor0ForwardPacket)
	m = Motor(off >> 2)
	d = Direction((off >> 1) & 1)
	speed = b[1]
	if off&1 == 1 {
		if speed > maxNormalSpeed+1 {
			return 0, 0, 0, fmt.Errorf("%v argument %d out of range 0..128", c, speed)
		}
		speed += maxNormalSpeed
	} else if speed > maxNormalSpeed {
		return 0, 0, 0, fmt.Errorf("%v argument %d out of range 0..127", c, speed)
	}
	return m, d, speed, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
