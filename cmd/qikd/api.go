package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/speters/qikd/qik"
)

// server exposes one qik session over http. mu serialises every device exchange.
type server struct {
	mu   *sync.Mutex
	q    *qik.Qik
	link *qik.Link
}

func newRouter(s *server) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger)

	router.HandleFunc("/version", versionInfo).Methods("GET")
	router.HandleFunc("/status", s.getStatus).Methods("GET")
	router.HandleFunc("/firmware", s.getFirmware).Methods("GET")
	router.HandleFunc("/errors", s.getErrors).Methods("GET")
	router.HandleFunc("/motor/{motor}", s.setMotor).Methods("POST")
	router.HandleFunc("/motor/{motor}/coast", s.coastMotor).Methods("POST")
	router.HandleFunc("/motor/{motor}/stop", s.stopMotor).Methods("POST")
	router.HandleFunc("/stop", s.stopBoth).Methods("POST")
	router.HandleFunc("/config/{param}", s.getConfig).Methods("GET")
	router.HandleFunc("/config/{param}", s.setConfig).Methods("POST")
	router.HandleFunc("/reset", s.reset).Methods("POST")
	return router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		log.WithFields(log.Fields{"request": id, "method": r.Method, "path": r.URL.Path}).Debug("http request")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	e.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}

// deviceError answers a failed exchange. Any transport failure drops the link, so the
// reconnect loop in main can take over.
func (s *server) deviceError(w http.ResponseWriter, err error) {
	log.Error(err)
	if s.link != nil && !errors.Is(err, qik.ErrInvalidMotor) && !errors.Is(err, qik.ErrInvalidDirection) {
		s.link.Close()
	}
	writeError(w, http.StatusBadGateway, err)
}

func versionInfo(w http.ResponseWriter, r *http.Request) {
	v := struct {
		Version   string `json:"version"`
		BuildDate string `json:"build_date"`
	}{Version: buildVersion, BuildDate: buildDate}
	writeJSON(w, http.StatusOK, v)
}

func parseMotor(s string) (qik.Motor, error) {
	switch s {
	case "0", "m0", "motor0":
		return qik.Motor0, nil
	case "1", "m1", "motor1":
		return qik.Motor1, nil
	}
	return 0, fmt.Errorf("%w: %q", qik.ErrInvalidMotor, s)
}

func (s *server) getStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st, err := s.q.Status()
	s.mu.Unlock()
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) getFirmware(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	v, err := s.q.FirmwareVersion()
	s.mu.Unlock()
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"firmware_version": v})
}

func (s *server) getErrors(w http.ResponseWriter, r *http.Request) {
	refresh := true
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		refresh = b
	}

	s.mu.Lock()
	var err error
	if refresh {
		_, err = s.q.ErrorByte()
	}
	e, fetched := s.q.CachedErrors()
	s.mu.Unlock()
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Errors  qik.ErrorFlags `json:"errors"`
		Raw     uint8          `json:"raw"`
		Fetched bool           `json:"fetched"`
	}{e, uint8(e), fetched})
}

type motorRequest struct {
	Direction string `json:"direction"`
	Speed     int    `json:"speed"`
}

func (s *server) setMotor(w http.ResponseWriter, r *http.Request) {
	m, err := parseMotor(mux.Vars(r)["motor"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req motorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := qik.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Speed < 0 || req.Speed > 255 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("speed %d out of range 0..255", req.Speed))
		return
	}

	s.mu.Lock()
	err = s.q.SetMotorSpeed(m, d, uint8(req.Speed))
	s.mu.Unlock()
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "OK")
}

func (s *server) motorAction(w http.ResponseWriter, r *http.Request, action func(qik.Motor) error) {
	m, err := parseMotor(mux.Vars(r)["motor"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.mu.Lock()
	err = action(m)
	s.mu.Unlock()
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "OK")
}

func (s *server) coastMotor(w http.ResponseWriter, r *http.Request) {
	s.motorAction(w, r, s.q.Coast)
}

func (s *server) stopMotor(w http.ResponseWriter, r *http.Request) {
	s.motorAction(w, r, s.q.Stop)
}

func (s *server) stopBoth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.q.StopBothMotors()
	s.mu.Unlock()
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "OK")
}

type configValue struct {
	Param string      `json:"param"`
	Value interface{} `json:"value"`
}

func (s *server) getConfig(w http.ResponseWriter, r *http.Request) {
	p, err := qik.ParseConfigParam(mux.Vars(r)["param"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	s.mu.Lock()
	var v interface{}
	if p == qik.ConfigShutdownOnError {
		v, err = s.q.ShutdownOnError()
	} else {
		v, err = s.q.GetConfig(p)
	}
	s.mu.Unlock()
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configValue{Param: p.String(), Value: v})
}

// configByte accepts a json number 0..255 or a bool
func configByte(v interface{}) (uint8, error) {
	switch v := v.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		if v < 0 || v > 255 || v != float64(uint8(v)) {
			return 0, fmt.Errorf("value %v out of range 0..255", v)
		}
		return uint8(v), nil
	}
	return 0, fmt.Errorf("value must be a number or bool, got %T", v)
}

func (s *server) setConfig(w http.ResponseWriter, r *http.Request) {
	p, err := qik.ParseConfigParam(mux.Vars(r)["param"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req configValue
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := configByte(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	ok, err := s.q.SetConfig(p, v)
	s.mu.Unlock()
	if err != nil {
		s.deviceError(w, err)
		return
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, struct {
		Param string `json:"param"`
		Value uint8  `json:"value"`
		OK    bool   `json:"ok"`
	}{p.String(), v, ok})
}

func (s *server) reset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.q.Begin()
	s.mu.Unlock()
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "OK")
}
