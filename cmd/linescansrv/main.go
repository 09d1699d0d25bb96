// linescansrv runs the line-scan acquisition chain against the sensor
// simulator and exposes it over HTTP, optionally forwarding completed
// lines to a host over serial or TCP.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	"github.com/spectrobench/linescan/ccd"
	"github.com/spectrobench/linescan/comm"
	"github.com/spectrobench/linescan/readout"
	"github.com/spectrobench/linescan/server/middleware/locker"
	"github.com/spectrobench/linescan/transmit"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "linescansrv.yml"
	k              = koanf.New(".")
)

// HostConfig describes the link completed lines are forwarded over
type HostConfig struct {
	// Addr is the serial device node, or host:port for TCP.  Empty
	// disables forwarding; lines are then only available over HTTP.
	Addr string `koanf:"addr" yaml:"addr"`

	// Serial selects a serial connection instead of TCP
	Serial bool `koanf:"serial" yaml:"serial"`

	// Baud is the serial line rate
	Baud int `koanf:"baud" yaml:"baud"`
}

// Config holds the options for the server
type Config struct {
	// Addr is the interface and port the HTTP server listens on
	Addr string `koanf:"addr" yaml:"addr"`

	// PixelHz is the simulated pixel clock rate; 0 is unthrottled
	PixelHz float64 `koanf:"pixelHz" yaml:"pixelHz"`

	// ExposureTime is the idle time between scans, e.g. "10ms"
	ExposureTime string `koanf:"exposureTime" yaml:"exposureTime"`

	// Averaging is the number of exposures accumulated per line
	Averaging int `koanf:"averaging" yaml:"averaging"`

	Host HostConfig `koanf:"host" yaml:"host"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:         ":8000",
		PixelHz:      1e6,
		ExposureTime: "10ms",
		Averaging:    1,
		Host:         HostConfig{Baud: 115200}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `linescansrv runs the line-scan camera acquisition chain and exposes an HTTP
interface to it.  The sensor is simulated; completed lines may additionally be
forwarded to a host over serial or TCP, framed the same way the instrument
frames them.

Usage:
	linescansrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `linescansrv is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

Without a configuration, the server listens on :8000 with a 1 MHz pixel clock,
10 ms exposures, and no averaging.

Options:
- addr          interface and port for the HTTP server
- pixelHz       simulated pixel clock rate, 0 for unthrottled
- exposureTime  idle time between scans, parseable by Go's time.ParseDuration
- averaging     exposures accumulated per line, 1 to disable
- host.addr     serial device node or host:port to forward lines to; empty
                disables forwarding
- host.serial   true for a serial link, false for TCP
- host.baud     serial line rate

The chain is armed before the sensor starts; use POST /disarm and POST /arm to
pause and resume acquisition.  GET /line?fmt=fits downloads the most recent
line as a FITS file.  POST true to /lock to reject mutating requests.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("linescansrv version %v\n", Version)
}

// openHostLink opens the forwarding link with a spinner, since serial
// enumeration can take a moment
func openHostLink(c HostConfig) (*comm.HostLink, error) {
	link := comm.NewHostLink(c.Addr, c.Serial)
	link.Baud = c.Baud
	spin, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " connecting to host at " + c.Addr,
		StopCharacter:     "✓",
		StopFailCharacter: "✗",
		StopColors:        []string{"fgGreen"},
		StopFailColors:    []string{"fgRed"}})
	if err != nil {
		return nil, err
	}
	spin.Start()
	err = link.Open()
	if err != nil {
		spin.StopFail()
		return nil, err
	}
	spin.Stop()
	return link, nil
}

func run() {
	cfg := Config{}
	err := k.Unmarshal("", &cfg)
	if err != nil {
		log.Fatal(err)
	}
	texp, err := time.ParseDuration(cfg.ExposureTime)
	if err != nil {
		log.Fatal("error parsing exposureTime: ", err)
	}

	sim := ccd.NewSimulator(cfg.PixelHz, nil)
	if err := sim.SetExposureTime(texp); err != nil {
		log.Fatal(err)
	}
	chain, err := readout.NewController(sim)
	if err != nil {
		log.Fatal(err)
	}
	if err := chain.SetAveraging(cfg.Averaging); err != nil {
		log.Fatal(err)
	}
	if texp < readout.ShortExposure && cfg.Averaging <= 1 {
		log.Printf("exposure %v is below %v, expect poor SNR; consider averaging > 1", texp, readout.ShortExposure)
	}

	httpR := readout.NewHTTPReadout(chain, sim)
	lock := locker.New()
	locker.Inject(httpR, lock)
	sub := chi.NewRouter()
	sub.Use(lock.Check)
	httpR.RT().Bind(sub)

	rootR := chi.NewRouter()
	rootR.Use(middleware.Logger)
	rootR.Mount("/", sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var link *comm.HostLink
	if cfg.Host.Addr != "" {
		link, err = openHostLink(cfg.Host)
		if err != nil {
			log.Fatal("error opening host link: ", err)
		}
		tx := transmit.NewTransmitter(chain, link)
		go func() {
			log.Println("transmitter stopped:", tx.Run(ctx, chain.Ready()))
		}()
		log.Println("forwarding lines to", cfg.Host.Addr)
	}

	// arm before the sensor starts scanning; edges that arrive before
	// the chain is armed are silently lost
	chain.Arm()
	go chain.Run(ctx, sim.Edges(), sim.Exposures())
	go sim.Run(ctx)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
		if link != nil {
			link.Close()
		}
		os.Exit(0)
	}()
	log.Println("now listening for requests at", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, rootR))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
