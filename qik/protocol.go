package qik

import "fmt"

// CommandType is a leading byte of the qik Compact Protocol
type CommandType byte

// Command bytes of the Compact Protocol. Normal motor packets carry a speed of 0..127,
// fast packets carry (speed - 127) for the upper half of the speed range.
const (
	initialPacket CommandType = 0xAA

	fwVersionPacket CommandType = 0x81
	errorPacket     CommandType = 0x82
	getConfigPacket CommandType = 0x83
	setConfigPacket CommandType = 0x84

	motor0CoastPacket CommandType = 0x86
	motor1CoastPacket CommandType = 0x87

	motor0ForwardPacket     CommandType = 0x88
	motor0ForwardFastPacket CommandType = 0x89
	motor0ReversePacket     CommandType = 0x8A
	motor0ReverseFastPacket CommandType = 0x8B
	motor1ForwardPacket     CommandType = 0x8C
	motor1ForwardFastPacket CommandType = 0x8D
	motor1ReversePacket     CommandType = 0x8E
	motor1ReverseFastPacket CommandType = 0x8F
)

// maxNormalSpeed is the highest speed carried by a normal motor packet
const maxNormalSpeed = 127

// ConfigOK is the status byte returned by the device on a successful set config
const ConfigOK byte = 0

func (c CommandType) String() string {
	switch c {
	case initialPacket:
		return "init"
	case fwVersionPacket:
		return "getFirmwareVersion"
	case errorPacket:
		return "getError"
	case getConfigPacket:
		return "getConfig"
	case setConfigPacket:
		return "setConfig"
	case motor0CoastPacket:
		return "motor0Coast"
	case motor1CoastPacket:
		return "motor1Coast"
	case motor0ForwardPacket:
		return "motor0Forward"
	case motor0ForwardFastPacket:
		return "motor0ForwardFast"
	case motor0ReversePacket:
		return "motor0Reverse"
	case motor0ReverseFastPacket:
		return "motor0ReverseFast"
	case motor1ForwardPacket:
		return "motor1Forward"
	case motor1ForwardFastPacket:
		return "motor1ForwardFast"
	case motor1ReversePacket:
		return "motor1Reverse"
	case motor1ReverseFastPacket:
		return "motor1ReverseFast"
	}
	return fmt.Sprintf("CommandType(%#x)", byte(c))
}

// Motor selects one of the two motor channels
type Motor uint8

const (
	Motor0 Motor = iota
	Motor1
)

func (m Motor) String() string {
	switch m {
	case Motor0:
		return "motor0"
	case Motor1:
		return "motor1"
	}
	return fmt.Sprintf("Motor(%d)", uint8(m))
}

// Direction of a motor speed command
type Direction uint8

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// ParseDirection accepts "forward"/"fwd"/"f" and "reverse"/"rev"/"r"
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forward", "fwd", "f", "":
		return Forward, nil
	case "reverse", "rev", "r":
		return Reverse, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// motorPackets holds the command bytes per motor and direction: {normal, fast}
var motorPackets = [2][2][2]CommandType{
	Motor0: {
		Forward: {motor0ForwardPacket, motor0ForwardFastPacket},
		Reverse: {motor0ReversePacket, motor0ReverseFastPacket},
	},
	Motor1: {
		Forward: {motor1ForwardPacket, motor1ForwardFastPacket},
		Reverse: {motor1ReversePacket, motor1ReverseFastPacket},
	},
}

var coastPackets = [2]CommandType{
	Motor0: motor0CoastPacket,
	Motor1: motor1CoastPacket,
}

// ConfigParam is the key of a persisted device setting
type ConfigParam byte

const (
	ConfigDeviceID        ConfigParam = 0
	ConfigPWM             ConfigParam = 1
	ConfigShutdownOnError ConfigParam = 2
	ConfigSerialTimeout   ConfigParam = 3
)

var configParamNames = map[ConfigParam]string{
	ConfigDeviceID:        "device_id",
	ConfigPWM:             "pwm",
	ConfigShutdownOnError: "shutdown_on_error",
	ConfigSerialTimeout:   "serial_timeout",
}

func (p ConfigParam) String() string {
	if s, ok := configParamNames[p]; ok {
		return s
	}
	return fmt.Sprintf("ConfigParam(%d)", byte(p))
}

// ParseConfigParam maps a parameter name as returned by ConfigParam.String back to its key
func ParseConfigParam(s string) (ConfigParam, error) {
	for p, name := range configParamNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown config parameter %q", s)
}

// ConfigParams lists all known parameters in key order
func ConfigParams() []ConfigParam {
	return []ConfigParam{ConfigDeviceID, ConfigPWM, ConfigShutdownOnError, ConfigSerialTimeout}
}

// PWMMode is the value of the ConfigPWM parameter.
// HF/LF = high/low frequency, 7/8 = 7/8 bit resolution.
type PWMMode byte

const (
	PWM31_5kHz PWMMode = 0
	PWM15_7kHz PWMMode = 1
	PWM7_8kHz  PWMMode = 2
	PWM3_9kHz  PWMMode = 3

	PWMHighFreq7Bit = PWM31_5kHz
	PWMHighFreq8Bit = PWM15_7kHz
	PWMLowFreq7Bit  = PWM7_8kHz
	PWMLowFreq8Bit  = PWM3_9kHz
)

func (m PWMMode) String() string {
	switch m {
	case PWM31_5kHz:
		return "31.5kHz"
	case PWM15_7kHz:
		return "15.7kHz"
	case PWM7_8kHz:
		return "7.8kHz"
	case PWM3_9kHz:
		return "3.9kHz"
	}
	return fmt.Sprintf("PWMMode(%d)", byte(m))
}
