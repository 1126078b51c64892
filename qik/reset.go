package qik

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
)

// ResetLine is the digital output wired to the RESET pin of the qik
type ResetLine interface {
	SetLevel(high bool) error
}

// NopResetLine is used when the reset pin is not connected
type NopResetLine struct{}

func (NopResetLine) SetLevel(bool) error { return nil }

// GPIOResetLine drives a Raspberry Pi GPIO pin (BCM numbering) through /dev/gpiomem
type GPIOResetLine struct {
	pin rpio.Pin
}

// NewGPIOResetLine maps the GPIO memory and configures pin as an output
func NewGPIOResetLine(pin int) (*GPIOResetLine, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("could not open gpio memory: %w", err)
	}
	p := rpio.Pin(pin)
	p.Output()
	log.Debugf("Using GPIO %d as reset line", pin)
	return &GPIOResetLine{pin: p}, nil
}

func (g *GPIOResetLine) SetLevel(high bool) error {
	if high {
		g.pin.High()
	} else {
		g.pin.Low()
	}
	return nil
}

// Close unmaps the GPIO memory
func (g *GPIOResetLine) Close() error {
	return rpio.Close()
}
