package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/speters/qikd/qik"
)

var errQuit = errors.New("quit")

const shellHelp = `Commands:
  fw                      firmware version
  errors [refresh]        error flags (refresh: true|false, default true)
  m0|m1 <speed> [rev]     set speed 0..255, negative speeds reverse
  coast <0|1>             let a motor coast
  stop [0|1]              stop one or both motors
  get <param>             read device_id, pwm, shutdown_on_error or serial_timeout
  set <param> <value>     write a config parameter
  status                  firmware, errors and all parameters
  reset                   reset pulse and init byte
  help                    this text
  quit                    leave the shell
`

// shell runs text commands against a qik session
type shell struct {
	mu  *sync.Mutex
	q   *qik.Qik
	out io.Writer
}

// run reads lines with readline until quit, EOF or interrupt
func (s *shell) run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "qik> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	s.out = rl.Stdout()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil
		}
		err = s.exec(line)
		if err == errQuit {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// exec runs one command line
func (s *shell) exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprint(s.out, shellHelp)
	case "quit", "exit", "q":
		return errQuit
	case "fw":
		v, err := s.q.FirmwareVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "firmware %#x (%q)\n", v, rune(v))
	case "errors":
		refresh := true
		if len(args) > 0 {
			if refresh, err = strconv.ParseBool(args[0]); err != nil {
				return err
			}
		}
		if refresh {
			if _, err := s.q.ErrorByte(); err != nil {
				return err
			}
		}
		e, fetched := s.q.CachedErrors()
		if !fetched {
			fmt.Fprintln(s.out, "errors not fetched yet")
			return nil
		}
		fmt.Fprintf(s.out, "errors %v (%#02x)\n", e, uint8(e))
	case "m0", "m1":
		return s.motor(cmd, args)
	case "coast":
		m, err := motorArg(args, 0)
		if err != nil {
			return err
		}
		return s.q.Coast(m)
	case "stop":
		if len(args) == 0 {
			return s.q.StopBothMotors()
		}
		m, err := motorArg(args, 0)
		if err != nil {
			return err
		}
		return s.q.Stop(m)
	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <param>")
		}
		p, err := qik.ParseConfigParam(args[0])
		if err != nil {
			return err
		}
		v, err := s.q.GetConfig(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%v = %d\n", p, v)
	case "set":
		if len(args) != 2 {
			return errors.New("usage: set <param> <value>")
		}
		p, err := qik.ParseConfigParam(args[0])
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return err
		}
		ok, err := s.q.SetConfig(p, uint8(v))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("device rejected %v = %d", p, v)
		}
		fmt.Fprintln(s.out, "OK")
	case "status":
		st, err := s.q.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "firmware %#x, errors %v, device id %d, pwm %v, shutdown on error %v, serial timeout %d\n",
			st.FirmwareVersion, st.Errors, st.DeviceID, st.PWM, st.ShutdownOnError, st.SerialTimeout)
	case "reset":
		return s.q.Begin()
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (s *shell) motor(cmd string, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: %v <speed> [rev]", cmd)
	}
	m := qik.Motor0
	if cmd == "m1" {
		m = qik.Motor1
	}
	speed, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	d := qik.Forward
	if speed < 0 {
		d, speed = qik.Reverse, -speed
	}
	if len(args) == 2 {
		if d, err = qik.ParseDirection(args[1]); err != nil {
			return err
		}
	}
	if speed > 255 {
		return fmt.Errorf("speed %d out of range", speed)
	}
	return s.q.SetMotorSpeed(m, d, uint8(speed))
}

func motorArg(args []string, i int) (qik.Motor, error) {
	if len(args) <= i {
		return 0, errors.New("missing motor")
	}
	return parseMotor(args[i])
}
