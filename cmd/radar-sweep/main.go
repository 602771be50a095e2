package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/radar-sweep/internal/api"
	"github.com/banshee-data/radar-sweep/internal/config"
	"github.com/banshee-data/radar-sweep/internal/db"
	"github.com/banshee-data/radar-sweep/internal/serialmux"
	"github.com/banshee-data/radar-sweep/internal/sweep"
	"github.com/banshee-data/radar-sweep/internal/version"
	"github.com/banshee-data/radar-sweep/internal/visualiser"
)

var (
	listen      = flag.String("listen", config.DefaultListen, "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", config.DefaultGRPCListen, "gRPC listen address for the sweep stream (empty to disable)")
	port        = flag.String("port", config.DefaultPort, "Serial port to use (ignored in dev mode)")
	devMode     = flag.Bool("dev", false, "Use a synthetic sensor instead of the serial port")
	configFile  = flag.String("config", "", "Path to a JSON sweep config file")
	dbPath      = flag.String("db", "", "SQLite database for sensor profiles (empty to disable)")
	profileName = flag.String("profile", "", "Sensor profile name or ID to load from --db")
	resolution  = flag.Int("resolution", sweep.DefaultResolution, "Angular steps per revolution")
	moveSize    = flag.Int("move-size", sweep.DefaultMoveSize, "Chord span in steps")
	failFast    = flag.Bool("fail-fast", false, "Stop acquisition on the first malformed line instead of resynchronising")
	showVersion = flag.Bool("version", false, "Print version and exit")
	listPorts   = flag.Bool("list-ports", false, "List available serial ports and exit")
)

// settings is the resolved runtime configuration: built-in defaults, then the
// config file, then a stored profile, then explicitly set flags.
type settings struct {
	port           string
	portOpts       serialmux.PortOptions
	resolution     int
	moveSize       int
	headLength     float64
	policy         sweep.Policy
	maxDigits      int
	idleBackoff    time.Duration
	statsInterval  time.Duration
	streamInterval time.Duration
	listen         string
	grpcListen     string
}

func settingsFromConfig(cfg *config.SweepConfig) settings {
	return settings{
		port:           cfg.GetPort(),
		portOpts:       cfg.PortOptions(),
		resolution:     cfg.GetResolution(),
		moveSize:       cfg.GetMoveSize(),
		headLength:     cfg.GetHeadLength(),
		policy:         cfg.GetErrorPolicy(),
		maxDigits:      cfg.GetMaxDigits(),
		idleBackoff:    cfg.GetIdleBackoff(),
		statsInterval:  cfg.GetStatsInterval(),
		streamInterval: cfg.GetStreamInterval(),
		listen:         cfg.GetListen(),
		grpcListen:     cfg.GetGRPCListen(),
	}
}

func (s *settings) applyProfile(p *db.SensorProfile) {
	s.port = p.PortPath
	s.portOpts = p.PortOptions()
	s.resolution = p.Resolution
	s.moveSize = p.MoveSize
}

// applyFlags overrides s with every flag named in set.
func (s *settings) applyFlags(set map[string]bool) {
	if set["listen"] {
		s.listen = *listen
	}
	if set["grpc-listen"] {
		s.grpcListen = *grpcListen
	}
	if set["port"] {
		s.port = *port
	}
	if set["resolution"] {
		s.resolution = *resolution
	}
	if set["move-size"] {
		s.moveSize = *moveSize
	}
	if set["fail-fast"] {
		s.policy = sweep.PolicyResync
		if *failFast {
			s.policy = sweep.PolicyFailFast
		}
	}
}

func (s settings) validate() error {
	if s.resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %d", s.resolution)
	}
	if s.moveSize < 0 || s.moveSize > s.resolution {
		return fmt.Errorf("move size must be between 0 and %d, got %d", s.resolution, s.moveSize)
	}
	if _, err := s.portOpts.Normalise(); err != nil {
		return err
	}
	if s.listen == "" {
		return errors.New("listen address is required")
	}
	return nil
}

func setFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// findProfile looks a profile up by numeric ID, falling back to name.
func findProfile(store *db.DB, ref string) (*db.SensorProfile, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		p, err := store.GetProfile(id)
		if err == nil || !errors.Is(err, db.ErrProfileNotFound) {
			return p, err
		}
	}
	return store.GetProfileByName(ref)
}

// openSource opens the sensor. A port that cannot be opened leaves the
// service running in degraded mode with an empty sweep.
func openSource(s settings, dev bool, open serialmux.PortOpener) sweep.CharSource {
	if dev {
		log.Printf("Dev mode: using synthetic sensor (%d steps)", s.resolution)
		cfg := serialmux.DefaultMockSweepConfig()
		cfg.Resolution = s.resolution
		return serialmux.NewPortSource(serialmux.NewMockSweepPort(cfg))
	}

	log.Printf("Opening serial port %s (%s)", s.port, s.portOpts)
	p, err := open(s.port, s.portOpts)
	if err != nil {
		log.Printf("failed to open serial port, continuing without sensor: %v", err)
		return serialmux.NewDisabledSource()
	}
	return serialmux.NewPortSource(p)
}

// printPorts writes one serial device per line.
func printPorts(w io.Writer, list func() ([]string, error)) error {
	ports, err := list()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		if err := printPorts(os.Stdout, serialmux.ListPorts); err != nil {
			log.Fatalf("radar-sweep: %v", err)
		}
		return
	}

	if err := run(); err != nil {
		log.Printf("radar-sweep: %v", err)
		os.Exit(1)
	}
}

// run wires the service together and blocks until shutdown. It returns the
// acquisition error when fail-fast stopped the sensor.
func run() error {
	cfg := config.EmptySweepConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadSweepConfig(*configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	s := settingsFromConfig(cfg)

	var store *db.DB
	if *dbPath != "" {
		var err error
		if store, err = db.NewDB(*dbPath); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
	}
	if *profileName != "" {
		if store == nil {
			return errors.New("--profile requires --db")
		}
		p, err := findProfile(store, *profileName)
		if err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		log.Printf("Using sensor profile %q", p.Name)
		s.applyProfile(p)
	}
	s.applyFlags(setFlags())
	if err := s.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	buf, err := sweep.NewBuffer(s.resolution)
	if err != nil {
		return err
	}
	recon, err := sweep.NewReconstructor(buf, s.moveSize)
	if err != nil {
		return err
	}
	recon.SetHeadLength(s.headLength)

	tap := serialmux.NewTap(64)
	defer tap.Close()

	src := openSource(s, *devMode, serialmux.OpenPort)
	acq := sweep.NewAcquirer(src, buf, sweep.AcquirerConfig{
		Parser:        sweep.ParserConfig{Policy: s.policy, MaxDigits: s.maxDigits},
		IdleBackoff:   s.idleBackoff,
		StatsInterval: s.statsInterval,
		Sink:          tap,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// acquisition routine: the only writer of the buffer
	var acqErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		if acqErr = acq.Run(ctx); acqErr != nil {
			log.Printf("acquisition failed: %v", acqErr)
			stop()
		}
		log.Print("Closing serial port")
	}()

	if s.grpcListen != "" {
		grpcSrv := visualiser.NewServer(recon, s.streamInterval)
		pub := visualiser.NewPublisher(s.grpcListen, grpcSrv)
		if err := pub.Start(); err != nil {
			log.Printf("gRPC stream disabled: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-ctx.Done()
				pub.Stop()
			}()
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		var profiles api.ProfileStore
		if store != nil {
			profiles = store
		}
		mux := api.NewServer(recon, acq.Stats(), profiles).ServeMux()
		tap.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("database admin routes disabled: %v", err)
			}
		}

		server := &http.Server{
			Addr:    s.listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP server listening on %s", s.listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// streaming /debug/tail clients end when the tap closes
		tap.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return acqErr
}
