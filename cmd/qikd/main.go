package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/speters/qikd/qik"
)

var configFile = flag.String("config", "", "yaml config `file`")
var connTo = flag.String("c", "", "connection string, use socket://[host]:[port] for TCP, [serialDevice] for direct serial connection or sim:// for a simulated qik")
var baud = flag.Int("b", qik.DefaultBaud, "baud rate of the serial connection")
var resetPin = flag.Int("r", -1, "BCM number of the GPIO wired to the qik RESET pin, -1 if not connected")
var httpServe = flag.String("s", "", "start http server at [bindtohost][:]port")
var interactive = flag.Bool("i", false, "start interactive shell")
var verbose = flag.Bool("v", false, "verbose logging")

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

// To be set via go build -ldflags "-X main.buildVersion=$(git describe --dirty) -X main.buildDate=$(date -u +%FT%TZ)"
var buildVersion = "unspecified"
var buildDate = "unknown"

// applyFlags overrides cfg with every flag given on the command line
func applyFlags(cfg *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "c":
			cfg.Link = *connTo
		case "b":
			cfg.Baud = *baud
		case "r":
			cfg.ResetPin = *resetPin
		case "s":
			cfg.HTTP = *httpServe
		case "v":
			if *verbose {
				cfg.LogLevel = "debug"
			}
		}
	})
}

// stopper ends a session. The first shutdown call stops both motors and closes the link
// while holding mu, then runs after; later calls wait for it and return.
type stopper struct {
	once  sync.Once
	mu    *sync.Mutex
	q     *qik.Qik
	link  *qik.Link
	after func()
}

func (s *stopper) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		// leave the motors in a safe state
		if err := s.q.StopBothMotors(); err != nil {
			log.Error(err)
		}
		s.link.Close()
		s.mu.Unlock()

		if s.after != nil {
			s.after()
		}
	})
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	applyFlags(cfg)

	level, err := cfg.logLevel()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)
	if level == log.DebugLevel {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	}

	if cfg.Link == "" {
		log.Fatal("Need connection string in -c option, QIKD_LINK or config file")
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	link := qik.NewLink()
	if err := link.Connect(cfg.Link, cfg.Baud); err != nil {
		log.Fatal(err)
	}

	var reset qik.ResetLine = qik.NopResetLine{}
	if cfg.ResetPin >= 0 {
		gpio, err := qik.NewGPIOResetLine(cfg.ResetPin)
		if err != nil {
			log.Fatal(err)
		}
		defer gpio.Close()
		reset = gpio
	} else if link.Simulator() != nil {
		// resolves to the simulator behind the link, also after a reconnect
		reset = link
	}

	done := make(chan os.Signal, 1)

	signal.Notify(done,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	q := qik.New(link, reset)
	if err := q.Begin(); err != nil {
		log.Fatal(err)
	}
	if err := applyInit(q, cfg.Init); err != nil {
		log.Fatal(err)
	}
	if v, err := q.FirmwareVersion(); err != nil {
		log.Fatal(err)
	} else {
		log.Infof("qik firmware version %#x", v)
	}

	var mu sync.Mutex
	stop := &stopper{mu: &mu, q: q, link: link, after: func() {
		if *memprofile != "" {
			f, err := os.Create(*memprofile)
			if err != nil {
				log.Fatal("could not create memory profile: ", err)
			}
			runtime.GC() // get up-to-date statistics
			if err := pprof.WriteHeapProfile(f); err != nil {
				log.Fatal("could not write memory profile: ", err)
			}
			f.Close()
		}
		if *cpuprofile != "" {
			pprof.StopCPUProfile()
		}
	}}

	go func() {
		<-done
		stop.shutdown()
		os.Exit(0)
	}()

	if cfg.HTTP != "" {
		// accept :[portnum] as well as [portnum]
		if i, err := strconv.Atoi(cfg.HTTP); err == nil {
			cfg.HTTP = fmt.Sprintf(":%d", i)
		}

		h := &http.Server{Addr: cfg.HTTP, Handler: newRouter(&server{mu: &mu, q: q, link: link})}
		go func() { log.Error(h.ListenAndServe()) }()
		log.Infof("Serving http on %v", cfg.HTTP)

		if !*interactive {
			for {
				<-link.Done()
				<-time.After(12 * time.Second)
				mu.Lock()
				err := link.Reconnect()
				if err == nil {
					err = q.Begin()
				}
				mu.Unlock()
				if err != nil {
					log.Error(err)
				} else {
					log.Infof("Reconnected")
				}
			}
		}
	}

	if *interactive {
		sh := &shell{mu: &mu, q: q, out: os.Stdout}
		if err := sh.run(); err != nil {
			log.Error(err)
		}
	}
	stop.shutdown()
}
