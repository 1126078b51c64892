package qik

import (
	"io"
	"time"
)

// fakeTransport records written bytes and replays queued replies
type fakeTransport struct {
	sent    []byte
	replies []byte
	reads   int
	writes  int
	err     error
}

func (f *fakeTransport) WriteByte(c byte) error {
	f.writes++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, c)
	return nil
}

func (f *fakeTransport) ReadByte() (byte, error) {
	f.reads++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.replies) == 0 {
		return 0, io.EOF
	}
	b := f.replies[0]
	f.replies = f.replies[1:]
	return b, nil
}

func (f *fakeTransport) ops() int { return f.reads + f.writes }

func (f *fakeTransport) reply(b ...byte) { f.replies = append(f.replies, b...) }

func (f *fakeTransport) clear() { f.sent = nil }

func noSleep(time.Duration) {}

func newFakeQik() (*Qik, *fakeTransport) {
	f := &fakeTransport{}
	return New(f, nil, WithSleeper(noSleep)), f
}
