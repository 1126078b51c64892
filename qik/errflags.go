package qik

import (
	"encoding/json"
	"strings"
)

// ErrorFlags is the error byte reported by the device. Bits 0..2 are unused.
type ErrorFlags uint8

const (
	DataOverrunError ErrorFlags = 1 << 3
	FrameError       ErrorFlags = 1 << 4
	CRCError         ErrorFlags = 1 << 5
	FormatError      ErrorFlags = 1 << 6
	TimeoutError     ErrorFlags = 1 << 7
)

var errorFlagNames = []struct {
	flag ErrorFlags
	name string
}{
	{DataOverrunError, "data_overrun"},
	{FrameError, "frame"},
	{CRCError, "crc"},
	{FormatError, "format"},
	{TimeoutError, "timeout"},
}

// AllErrorFlags lists the five named flags in bit order
func AllErrorFlags() []ErrorFlags {
	return []ErrorFlags{DataOverrunError, FrameError, CRCError, FormatError, TimeoutError}
}

// Has reports whether every bit of flag is set
func (e ErrorFlags) Has(flag ErrorFlags) bool {
	return flag != 0 && e&flag == flag
}

// Names returns the names of all set flags
func (e ErrorFlags) Names() []string {
	names := []string{}
	for _, f := range errorFlagNames {
		if e.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	return names
}

func (e ErrorFlags) String() string {
	if e&^0x07 == 0 {
		return "none"
	}
	return strings.Join(e.Names(), "|")
}

// MarshalJSON emits the list of set flag names
func (e ErrorFlags) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Names())
}
