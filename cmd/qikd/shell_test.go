package main

import (
	"bytes"
	"sync"
	"testing"

	"github.com/speters/qikd/qik"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer, *qik.Simulator) {
	q, _, sim := newSimSession(t)
	out := &bytes.Buffer{}
	return &shell{mu: &sync.Mutex{}, q: q, out: out}, out, sim
}

func TestShellMotors(t *testing.T) {
	sh, _, sim := newTestShell(t)

	require.NoError(t, sh.exec("m0 200"))
	assert.Equal(t, qik.MotorState{Direction: qik.Forward, Speed: 200}, sim.Motor(qik.Motor0))

	require.NoError(t, sh.exec("m1 -50"))
	assert.Equal(t, qik.MotorState{Direction: qik.Reverse, Speed: 50}, sim.Motor(qik.Motor1))

	require.NoError(t, sh.exec("m1 10 rev"))
	assert.Equal(t, qik.MotorState{Direction: qik.Reverse, Speed: 10}, sim.Motor(qik.Motor1))

	require.NoError(t, sh.exec("coast 0"))
	assert.True(t, sim.Motor(qik.Motor0).Coasting)

	require.NoError(t, sh.exec("stop 1"))
	assert.Equal(t, qik.MotorState{}, sim.Motor(qik.Motor1))

	require.NoError(t, sh.exec("stop"))
	assert.Equal(t, qik.MotorState{}, sim.Motor(qik.Motor0))

	assert.Error(t, sh.exec("m0 256"))
	assert.Error(t, sh.exec("m0"))
	assert.Error(t, sh.exec("coast"))
	assert.Error(t, sh.exec("coast 2"))
}

func TestShellConfigAndQueries(t *testing.T) {
	sh, out, sim := newTestShell(t)

	require.NoError(t, sh.exec("fw"))
	assert.Contains(t, out.String(), "firmware 0x31")

	out.Reset()
	require.NoError(t, sh.exec("errors false"))
	assert.Equal(t, "errors not fetched yet\n", out.String())

	sim.InjectErrors(qik.FormatError)
	out.Reset()
	require.NoError(t, sh.exec("errors"))
	assert.Equal(t, "errors format (0x40)\n", out.String())

	out.Reset()
	require.NoError(t, sh.exec("set serial_timeout 0x10"))
	assert.Equal(t, "OK\n", out.String())
	assert.Equal(t, uint8(16), sim.Config(qik.ConfigSerialTimeout))

	out.Reset()
	require.NoError(t, sh.exec("get serial_timeout"))
	assert.Equal(t, "serial_timeout = 16\n", out.String())

	assert.EqualError(t, sh.exec("set pwm 7"), "device rejected pwm = 7")
	assert.Error(t, sh.exec("set pwm"))
	assert.Error(t, sh.exec("get"))
	assert.Error(t, sh.exec("get speed"))

	out.Reset()
	require.NoError(t, sh.exec("status"))
	assert.Contains(t, out.String(), "device id 9")

	require.NoError(t, sh.exec("reset"))
}

func TestShellMisc(t *testing.T) {
	sh, out, _ := newTestShell(t)

	require.NoError(t, sh.exec(""))
	require.NoError(t, sh.exec("   "))
	require.NoError(t, sh.exec("help"))
	assert.Contains(t, out.String(), "Commands:")

	assert.Equal(t, errQuit, sh.exec("quit"))
	assert.EqualError(t, sh.exec("jump"), `unknown command "jump", try help`)
	assert.Error(t, sh.exec(`get "unterminated`))
}
