// Package qik drives a Pololu qik 2s9v1 dual motor controller using the Compact Protocol.
//
// A Qik is a plain session without locking. The protocol has no request identifiers, so
// callers must serialise all access to one session. Reads block until the transport
// delivers a byte or fails. Lost or duplicated bytes desynchronise every later
// command/response pair; only a new Begin restores a known state.
package qik

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Transport is the byte stream to the device
type Transport interface {
	WriteByte(c byte) error
	// ReadByte blocks until a byte is available
	ReadByte() (byte, error)
}

// Sleeper blocks for the given duration
type Sleeper func(time.Duration)

// Timing of the reset and init sequence
const (
	resetLowTime  = 100 * time.Millisecond
	resetHighTime = 10 * time.Millisecond
	initSettle    = 100 * time.Millisecond
)

// Qik is a device session
type Qik struct {
	t     Transport
	reset ResetLine
	sleep Sleeper

	fwVersion uint8
	fwFetched bool

	errByte    ErrorFlags
	errFetched bool
}

// Option configures a Qik
type Option func(*Qik)

// WithSleeper replaces time.Sleep for the init sequence
func WithSleeper(s Sleeper) Option {
	return func(q *Qik) { q.sleep = s }
}

// New creates a session. A nil reset line is treated as NopResetLine.
func New(t Transport, reset ResetLine, opts ...Option) *Qik {
	if reset == nil {
		reset = NopResetLine{}
	}
	q := &Qik{t: t, reset: reset, sleep: time.Sleep}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Begin pulses the reset line and sends the init byte, which also lets the device detect
// the baud rate. It must be called before any other operation and clears all caches.
func (q *Qik) Begin() error {
	q.fwFetched = false
	q.errFetched = false

	if err := q.reset.SetLevel(false); err != nil {
		return fmt.Errorf("reset low: %w", err)
	}
	q.sleep(resetLowTime)
	if err := q.reset.SetLevel(true); err != nil {
		return fmt.Errorf("reset high: %w", err)
	}
	q.sleep(resetHighTime)

	if err := q.send(initialPacket); err != nil {
		return err
	}
	q.sleep(initSettle)
	log.Debugf("qik initialized")
	return nil
}

// SetMotorSpeed drives a motor in a direction. Every speed 0..255 is valid.
func (q *Qik) SetMotorSpeed(m Motor, d Direction, speed uint8) error {
	b, err := EncodeMotorSpeed(m, d, speed)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"motor": m, "direction": d, "speed": speed}).Debug("set motor speed")
	return q.write(b)
}

func (q *Qik) Motor0Forward(speed uint8) error { return q.SetMotorSpeed(Motor0, Forward, speed) }
func (q *Qik) Motor0Reverse(speed uint8) error { return q.SetMotorSpeed(Motor0, Reverse, speed) }
func (q *Qik) Motor1Forward(speed uint8) error { return q.SetMotorSpeed(Motor1, Forward, speed) }
func (q *Qik) Motor1Reverse(speed uint8) error { return q.SetMotorSpeed(Motor1, Reverse, speed) }

// Coast disables the motor outputs, letting the motor spin freely
func (q *Qik) Coast(m Motor) error {
	b, err := EncodeCoast(m)
	if err != nil {
		return err
	}
	return q.write(b)
}

func (q *Qik) Motor0Coast() error { return q.Coast(Motor0) }
func (q *Qik) Motor1Coast() error { return q.Coast(Motor1) }

// Stop actively drives a motor at speed 0
func (q *Qik) Stop(m Motor) error {
	return q.SetMotorSpeed(m, Forward, 0)
}

func (q *Qik) StopMotor0() error { return q.Stop(Motor0) }
func (q *Qik) StopMotor1() error { return q.Stop(Motor1) }

// StopBothMotors stops motor 0, then motor 1
func (q *Qik) StopBothMotors() error {
	if err := q.Stop(Motor0); err != nil {
		return err
	}
	return q.Stop(Motor1)
}

// FirmwareVersion queries the device once and returns the cached value afterwards
func (q *Qik) FirmwareVersion() (uint8, error) {
	if q.fwFetched {
		return q.fwVersion, nil
	}
	b, err := q.query(fwVersionPacket)
	if err != nil {
		return 0, err
	}
	q.fwVersion, q.fwFetched = b, true
	return b, nil
}

// ErrorByte always asks the device for its error byte and caches the answer
func (q *Qik) ErrorByte() (ErrorFlags, error) {
	b, err := q.query(errorPacket)
	if err != nil {
		return 0, err
	}
	q.errByte, q.errFetched = ErrorFlags(b), true
	if q.errByte != 0 {
		log.Debugf("qik reports errors: %v", q.errByte)
	}
	return q.errByte, nil
}

// CachedErrors returns the last error byte and whether one was ever fetched
func (q *Qik) CachedErrors() (ErrorFlags, bool) {
	return q.errByte, q.errFetched
}

// HasError tests flag against the cached error byte. With refresh the error byte is
// fetched first, otherwise the transport is not used. An unfetched cache has no errors.
func (q *Qik) HasError(flag ErrorFlags, refresh bool) (bool, error) {
	if refresh {
		if _, err := q.ErrorByte(); err != nil {
			return false, err
		}
	}
	if !q.errFetched {
		return false, nil
	}
	return q.errByte.Has(flag), nil
}

func (q *Qik) HasDataOverrunError(refresh bool) (bool, error) {
	return q.HasError(DataOverrunError, refresh)
}
func (q *Qik) HasFrameError(refresh bool) (bool, error) { return q.HasError(FrameError, refresh) }
func (q *Qik) HasCRCError(refresh bool) (bool, error) { return q.HasError(CRCError, refresh) }
func (q *Qik) HasFormatError(refresh bool) (bool, error) { return q.HasError(FormatError, refresh) }
func (q *Qik) HasTimeoutError(refresh bool) (bool, error) {
	return q.HasError(TimeoutError, refresh)
}

// GetConfig reads a config parameter
func (q *Qik) GetConfig(p ConfigParam) (uint8, error) {
	if err := q.write(EncodeGetConfig(p)); err != nil {
		return 0, err
	}
	v, err := q.t.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%v %v: %w", getConfigPacket, p, err)
	}
	log.WithFields(log.Fields{"param": p, "value": v}).Debug("get config")
	return v, nil
}

// SetConfig writes a config parameter. It reports true only if the device answers ConfigOK.
func (q *Qik) SetConfig(p ConfigParam, v uint8) (bool, error) {
	if err := q.write(EncodeSetConfig(p, v)); err != nil {
		return false, err
	}
	status, err := q.t.ReadByte()
	if err != nil {
		return false, fmt.Errorf("%v %v: %w", setConfigPacket, p, err)
	}
	if status != ConfigOK {
		log.WithFields(log.Fields{"param": p, "value": v, "status": status}).Warn("set config rejected")
	}
	return status == ConfigOK, nil
}

func (q *Qik) DeviceID() (uint8, error) { return q.GetConfig(ConfigDeviceID) }
func (q *Qik) SetDeviceID(id uint8) (bool, error) { return q.SetConfig(ConfigDeviceID, id) }
func (q *Qik) SerialTimeout() (uint8, error) { return q.GetConfig(ConfigSerialTimeout) }
func (q *Qik) SetSerialTimeout(v uint8) (bool, error) { return q.SetConfig(ConfigSerialTimeout, v) }

// PWMParameter returns the raw PWM mode byte
func (q *Qik) PWMParameter() (PWMMode, error) {
	v, err := q.GetConfig(ConfigPWM)
	return PWMMode(v), err
}

func (q *Qik) SetPWMParameter(m PWMMode) (bool, error) {
	return q.SetConfig(ConfigPWM, uint8(m))
}

// ShutdownOnError decodes 1 as true and any other value as false
func (q *Qik) ShutdownOnError() (bool, error) {
	v, err := q.GetConfig(ConfigShutdownOnError)
	return v == 1, err
}

func (q *Qik) SetShutdownOnError(shutdown bool) (bool, error) {
	return q.SetConfig(ConfigShutdownOnError, boolByte(shutdown))
}

// Status is a snapshot of the device state
type Status struct {
	FirmwareVersion uint8      `json:"firmware_version"`
	Errors          ErrorFlags `json:"errors"`
	DeviceID        uint8      `json:"device_id"`
	PWM             PWMMode    `json:"pwm"`
	ShutdownOnError bool       `json:"shutdown_on_error"`
	SerialTimeout   uint8      `json:"serial_timeout"`
}

// Status queries firmware, errors and all config parameters one after another
func (q *Qik) Status() (s Status, err error) {
	if s.FirmwareVersion, err = q.FirmwareVersion(); err != nil {
		return s, err
	}
	if s.Errors, err = q.ErrorByte(); err != nil {
		return s, err
	}
	if s.DeviceID, err = q.DeviceID(); err != nil {
		return s, err
	}
	if s.PWM, err = q.PWMParameter(); err != nil {
		return s, err
	}
	if s.ShutdownOnError, err = q.ShutdownOnError(); err != nil {
		return s, err
	}
	s.SerialTimeout, err = q.SerialTimeout()
	return s, err
}

func (q *Qik) send(c CommandType) error {
	if err := q.t.WriteByte(byte(c)); err != nil {
		return fmt.Errorf("%v: %w", c, err)
	}
	return nil
}

func (q *Qik) write(b []byte) error {
	for _, c := range b {
		if err := q.t.WriteByte(c); err != nil {
			return fmt.Errorf("%v: %w", CommandType(b[0]), err)
		}
	}
	return nil
}

// query sends a single command byte and reads the one byte answer
func (q *Qik) query(c CommandType) (byte, error) {
	if err := q.send(c); err != nil {
		return 0, err
	}
	b, err := q.t.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%v: %w", c, err)
	}
	log.Debugf("%v returned %#x", c, b)
	return b, nil
}
