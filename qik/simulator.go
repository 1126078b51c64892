package qik

import (
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
)

// simState is a state of the Simulator command parser
type simState byte

const (
	simWaitInit simState = iota // ignore everything until the init byte
	simIdle                     // wait for a command byte
	simArgs                     // collect argument bytes of cmd
)

// SimFirmwareVersion is the version byte the Simulator reports (ASCII '1')
const SimFirmwareVersion byte = 0x31

// Status bytes of a set config answer besides ConfigOK
const (
	configBadParam byte = 1
	configBadValue byte = 2
)

// MotorState is the output state of one simulated motor channel
type MotorState struct {
	Direction Direction `json:"direction"`
	Speed     uint8     `json:"speed"`
	Coasting  bool      `json:"coasting"`
}

// Simulator is an in-process qik 2s9v1 speaking the Compact Protocol.
// Writes are parsed as the device would, answers are queued for Read, which blocks until
// an answer is available or the Simulator is closed.
type Simulator struct {
	mu     sync.Mutex
	cond   *sync.Cond
	out    []byte
	closed bool

	state simState
	cmd   CommandType
	args  []byte

	errors ErrorFlags
	config [4]uint8
	motors [2]MotorState
}

// NewSimulator returns a powered up device with factory settings that still waits for the init byte
func NewSimulator() *Simulator {
	s := &Simulator{}
	s.cond = sync.NewCond(&s.mu)
	s.config = [4]uint8{
		ConfigDeviceID:        9,
		ConfigPWM:             uint8(PWM31_5kHz),
		ConfigShutdownOnError: 1,
		ConfigSerialTimeout:   0,
	}
	s.reset()
	return s
}

func (s *Simulator) reset() {
	s.state = simWaitInit
	s.args = s.args[:0]
	s.errors = 0
	s.motors = [2]MotorState{{Coasting: true}, {Coasting: true}}
}

// Reset emulates a pulse on the reset pin
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.out = s.out[:0]
}

// SetLevel lets the Simulator act as its own reset line, resetting on a low level
func (s *Simulator) SetLevel(high bool) error {
	if !high {
		s.Reset()
	}
	return nil
}

// InjectErrors sets error bits as if the device had detected them
func (s *Simulator) InjectErrors(e ErrorFlags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors |= e
}

// Motor returns the output state of a motor channel
func (s *Simulator) Motor(m Motor) MotorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motors[m&1]
}

// Config returns the current value of a config parameter
func (s *Simulator) Config(p ConfigParam) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config[p&3]
}

func (s *Simulator) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	for _, c := range b {
		s.feed(c)
	}
	s.cond.Broadcast()
	return len(b), nil
}

func (s *Simulator) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.out) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.out) == 0 {
		return 0, io.EOF
	}
	n := copy(b, s.out)
	s.out = s.out[n:]
	return n, nil
}

// Close unblocks pending reads
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}

// argCount is the number of argument bytes following a command byte, -1 for unknown commands
func argCount(c CommandType) int {
	switch {
	case c == fwVersionPacket, c == errorPacket, c == motor0CoastPacket, c == motor1CoastPacket:
		return 0
	case c == getConfigPacket:
		return 1
	case c == setConfigPacket:
		return 2
	case c >= motor0ForwardPacket && c <= motor1ReverseFastPacket:
		return 1
	}
	return -1
}

// feed runs one received byte through the parser, mu must be held
func (s *Simulator) feed(c byte) {
	switch s.state {
	case simWaitInit:
		if CommandType(c) == initialPacket {
			log.Debugf("sim: init received")
			s.state = simIdle
		}
	case simIdle:
		cmd := CommandType(c)
		if cmd == initialPacket {
			break
		}
		n := argCount(cmd)
		if n < 0 {
			log.Debugf("sim: unknown command %#x", c)
			s.errors |= FormatError
			break
		}
		s.cmd = cmd
		s.args = s.args[:0]
		if n == 0 {
			s.exec()
			break
		}
		s.state = simArgs
	case simArgs:
		s.args = append(s.args, c)
		if len(s.args) == argCount(s.cmd) {
			s.state = simIdle
			s.exec()
		}
	default:
		panic("Should not reach default state")
	}
}

// exec runs the complete command in s.cmd and s.args
func (s *Simulator) exec() {
	switch s.cmd {
	case fwVersionPacket:
		s.out = append(s.out, SimFirmwareVersion)
	case errorPacket:
		s.out = append(s.out, byte(s.errors))
		s.errors = 0
	case motor0CoastPacket, motor1CoastPacket:
		s.motors[s.cmd-motor0CoastPacket] = MotorState{Coasting: true}
	case getConfigPacket:
		p := s.args[0]
		if p > byte(ConfigSerialTimeout) {
			s.errors |= FormatError
			s.out = append(s.out, 0)
			break
		}
		s.out = append(s.out, s.config[p])
	case setConfigPacket:
		s.out = append(s.out, s.setConfig(ConfigParam(s.args[0]), s.args[1]))
	default:
		m, d, speed, err := DecodeSpeed([]byte{byte(s.cmd), s.args[0]})
		if err != nil {
			s.errors |= FormatError
			break
		}
		s.motors[m] = MotorState{Direction: d, Speed: speed}
	}
}

func (s *Simulator) setConfig(p ConfigParam, v uint8) byte {
	var limit uint8
	switch p {
	case ConfigDeviceID, ConfigSerialTimeout:
		limit = 127
	case ConfigPWM:
		limit = uint8(PWM3_9kHz)
	case ConfigShutdownOnError:
		limit = 1
	default:
		return configBadParam
	}
	if v > limit {
		return configBadValue
	}
	s.config[p] = v
	return ConfigOK
}
