package qik

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

var (
	// ErrNotConnected is returned by Link operations before Connect or after Close
	ErrNotConnected = errors.New("link not connected")
	// ErrInvalidLink is returned for a connection string Connect can not handle
	ErrInvalidLink = errors.New("invalid link")
)

// DefaultBaud is used if Connect gets a baud rate of 0. The qik detects the rate from the init byte.
const DefaultBaud = 38400

// Link is the byte stream to a qik via serial device, tcp socket or simulator.
// Close may be called while a read is blocked; it unblocks the reader.
type Link struct {
	mu           sync.Mutex // guards conn, r, connected, done
	conn         io.ReadWriteCloser
	r            *bufio.Reader
	rlock, wlock sync.Mutex

	link      string
	baud      int
	connected bool
	done      chan struct{}
}

// NewLink creates an unconnected Link
func NewLink() *Link {
	return &Link{done: make(chan struct{})}
}

// Done is closed when the current connection is closed. Every Connect or Reconnect
// starts a new connection with a new channel.
func (o *Link) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Close closes the underlying serial port, network connection or simulator
func (o *Link) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.connected {
		return io.ErrClosedPipe
	}
	err := o.conn.Close()
	close(o.done)
	o.connected = false
	return err
}

func (o *Link) reader() (*bufio.Reader, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.connected {
		return nil, ErrNotConnected
	}
	return o.r, nil
}

func (o *Link) writer() (io.Writer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.connected {
		return nil, ErrNotConnected
	}
	return o.conn, nil
}

func (o *Link) Read(b []byte) (int, error) {
	o.rlock.Lock()
	defer o.rlock.Unlock()
	r, err := o.reader()
	if err != nil {
		return 0, err
	}
	n, err := r.Read(b)
	log.Debugf("Read b='%# x', n=%v, err=%v", b[0:n], n, err)
	return n, err
}

// ReadByte blocks until one byte is received
func (o *Link) ReadByte() (byte, error) {
	o.rlock.Lock()
	defer o.rlock.Unlock()
	r, err := o.reader()
	if err != nil {
		return 0, err
	}
	b, err := r.ReadByte()
	log.Debugf("Read b=%#02x, err=%v", b, err)
	return b, err
}

func (o *Link) Write(b []byte) (int, error) {
	o.wlock.Lock()
	defer o.wlock.Unlock()
	w, err := o.writer()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	log.Debugf("Write b='%# x', n=%v, err=%v", b, n, err)
	return n, err
}

// WriteByte sends a single byte
func (o *Link) WriteByte(c byte) error {
	_, err := o.Write([]byte{c})
	return err
}

// Connect attaches to the qik. link is a serial device (/dev/ttyAMA0 or file:///dev/ttyAMA0),
// a tcp socket (socket://host:port or tcp://host:port) or sim:// for the built in simulator.
func (o *Link) Connect(link string, baud int) error {
	if baud == 0 {
		baud = DefaultBaud
	}

	u, err := url.Parse(link)
	if err != nil {
		return err
	}

	var conn io.ReadWriteCloser
	switch u.Scheme {
	case "socket", "tcp":
		c, err := net.Dial("tcp", u.Host)
		if err != nil {
			return err
		}
		c.(*net.TCPConn).SetKeepAlive(true)
		c.(*net.TCPConn).SetKeepAlivePeriod(30 * time.Second)
		conn = c
	case "file", "":
		// 8N1, the only frame format the qik understands
		conn, err = serial.OpenPort(&serial.Config{Name: u.Path, Baud: baud, Size: 8, Parity: serial.ParityNone, StopBits: serial.Stop1})
		if err != nil {
			return err
		}
	case "sim":
		conn = NewSimulator()
	default:
		return fmt.Errorf("%w: can not find a valid connection string in \"%v\"", ErrInvalidLink, link)
	}

	o.Attach(conn)
	o.mu.Lock()
	o.link, o.baud = link, baud
	o.mu.Unlock()
	log.Infof("Connected to %v", link)
	return nil
}

// Attach uses an already opened connection
func (o *Link) Attach(conn io.ReadWriteCloser) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.conn = conn
	o.r = bufio.NewReader(conn)
	o.connected = true
	o.done = make(chan struct{})
}

// Simulator returns the device behind a sim:// link, nil for any other link
func (o *Link) Simulator() *Simulator {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, _ := o.conn.(*Simulator)
	return s
}

// SetLevel lets a sim:// link act as the reset line of the simulator currently behind it.
// For any other link it does nothing.
func (o *Link) SetLevel(high bool) error {
	if s := o.Simulator(); s != nil {
		return s.SetLevel(high)
	}
	return nil
}

// Reconnect closes and reopens the link given to Connect
func (o *Link) Reconnect() error {
	o.mu.Lock()
	link, baud := o.link, o.baud
	o.mu.Unlock()
	if link == "" {
		return ErrNotConnected
	}
	o.Close()
	return o.Connect(link, baud)
}
