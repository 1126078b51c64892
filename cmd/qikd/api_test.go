package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/speters/qikd/qik"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimSession(t *testing.T) (*qik.Qik, *qik.Link, *qik.Simulator) {
	t.Helper()
	sim := qik.NewSimulator()
	link := qik.NewLink()
	link.Attach(sim)
	t.Cleanup(func() { link.Close() })

	q := qik.New(link, sim, qik.WithSleeper(func(time.Duration) {}))
	require.NoError(t, q.Begin())
	return q, link, sim
}

func newTestRouter(t *testing.T) (http.Handler, *qik.Link, *qik.Simulator) {
	q, link, sim := newSimSession(t)
	return newRouter(&server{mu: &sync.Mutex{}, q: q, link: link}), link, sim
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIVersion(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec := do(t, h, "GET", "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"version":"unspecified","build_date":"unknown"}`, rec.Body.String())

	_, err := uuid.Parse(rec.Header().Get("X-Request-Id"))
	assert.NoError(t, err)
}

func TestAPIMotor(t *testing.T) {
	h, _, sim := newTestRouter(t)

	rec := do(t, h, "POST", "/motor/1", `{"direction":"reverse","speed":200}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, qik.MotorState{Direction: qik.Reverse, Speed: 200}, sim.Motor(qik.Motor1))

	rec = do(t, h, "POST", "/motor/m0", `{"speed":100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, qik.MotorState{Direction: qik.Forward, Speed: 100}, sim.Motor(qik.Motor0))

	rec = do(t, h, "POST", "/motor/0/coast", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sim.Motor(qik.Motor0).Coasting)

	rec = do(t, h, "POST", "/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, qik.MotorState{}, sim.Motor(qik.Motor0))
	assert.Equal(t, qik.MotorState{}, sim.Motor(qik.Motor1))

	rec = do(t, h, "POST", "/motor/1", `{"speed":42}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, "POST", "/motor/1/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, qik.MotorState{}, sim.Motor(qik.Motor1))
}

func TestAPIMotorBadRequests(t *testing.T) {
	h, _, _ := newTestRouter(t)

	assert.Equal(t, http.StatusNotFound, do(t, h, "POST", "/motor/2", `{"speed":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/motor/0", `{"speed":256}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/motor/0", `{"speed":-1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/motor/0", `{"direction":"up"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/motor/0", `speed`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, "GET", "/motor/0", "").Code)
}

func TestAPIConfig(t *testing.T) {
	h, _, sim := newTestRouter(t)

	rec := do(t, h, "GET", "/config/pwm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"param":"pwm","value":0}`, rec.Body.String())

	rec = do(t, h, "POST", "/config/device_id", `{"value":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"param":"device_id","value":5,"ok":true}`, rec.Body.String())
	assert.Equal(t, uint8(5), sim.Config(qik.ConfigDeviceID))

	rec = do(t, h, "POST", "/config/device_id", `{"value":200}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, uint8(5), sim.Config(qik.ConfigDeviceID))

	rec = do(t, h, "POST", "/config/shutdown_on_error", `{"value":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, "GET", "/config/shutdown_on_error", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"param":"shutdown_on_error","value":false}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/config/speed", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/config/pwm", `{"value":1.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/config/pwm", `{"value":"fast"}`).Code)
}

func TestAPIErrors(t *testing.T) {
	h, _, sim := newTestRouter(t)

	rec := do(t, h, "GET", "/errors?refresh=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"errors":[],"raw":0,"fetched":false}`, rec.Body.String())

	sim.InjectErrors(qik.CRCError | qik.TimeoutError)
	rec = do(t, h, "GET", "/errors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"errors":["crc","timeout"],"raw":160,"fetched":true}`, rec.Body.String())

	// the device cleared its error byte, the cache still holds the last answer
	rec = do(t, h, "GET", "/errors?refresh=false", "")
	assert.JSONEq(t, `{"errors":["crc","timeout"],"raw":160,"fetched":true}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/errors?refresh=maybe", "").Code)
}

func TestAPIStatusAndReset(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := do(t, h, "GET", "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, float64(qik.SimFirmwareVersion), st["firmware_version"])
	assert.Equal(t, float64(9), st["device_id"])
	assert.Equal(t, true, st["shutdown_on_error"])

	assert.Equal(t, http.StatusOK, do(t, h, "POST", "/reset", "").Code)

	rec = do(t, h, "GET", "/firmware", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"firmware_version":49}`, rec.Body.String())
}

func TestAPILinkDown(t *testing.T) {
	h, link, _ := newTestRouter(t)
	require.NoError(t, link.Close())

	rec := do(t, h, "GET", "/errors", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), qik.ErrNotConnected.Error())
}

// eofConn takes every write and ends the stream on the first read, like a bridge that hung up
type eofConn struct{}

func (eofConn) Read([]byte) (int, error) { return 0, io.EOF }
func (eofConn) Write(b []byte) (int, error) { return len(b), nil }
func (eofConn) Close() error { return nil }

func requireLinkDown(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	default:
		t.Fatal("link still up after a transport failure")
	}
}

func TestAPITransportFailureDropsLink(t *testing.T) {
	link := qik.NewLink()
	link.Attach(eofConn{})
	q := qik.New(link, nil, qik.WithSleeper(func(time.Duration) {}))
	var h http.Handler = newRouter(&server{mu: &sync.Mutex{}, q: q, link: link})
	done := link.Done()

	rec := do(t, h, "GET", "/firmware", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), io.EOF.Error())
	requireLinkDown(t, done)

	// a device that went away fails on write, which is not an EOF
	h, link, sim := newTestRouter(t)
	done = link.Done()
	require.NoError(t, sim.Close())

	rec = do(t, h, "POST", "/stop", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), io.ErrClosedPipe.Error())
	requireLinkDown(t, done)
}

func TestAPIBadRequestKeepsLink(t *testing.T) {
	h, link, _ := newTestRouter(t)
	done := link.Done()

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/motor/0", `{"speed":300}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "POST", "/motor/7/coast", "").Code)
	select {
	case <-done:
		t.Fatal("link dropped on a bad request")
	default:
	}
}
