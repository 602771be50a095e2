package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/radar-sweep/internal/config"
	"github.com/banshee-data/radar-sweep/internal/db"
	"github.com/banshee-data/radar-sweep/internal/serialmux"
	"github.com/banshee-data/radar-sweep/internal/sweep"
)

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("listen default = %q, want :8080", *listen)
	}
	if *grpcListen != "localhost:50051" {
		t.Errorf("grpc-listen default = %q", *grpcListen)
	}
	if *resolution != 2048 {
		t.Errorf("resolution default = %d, want 2048", *resolution)
	}
	if *moveSize != 16 {
		t.Errorf("move-size default = %d, want 16", *moveSize)
	}
	if *failFast {
		t.Error("fail-fast should default to false")
	}
	if *devMode {
		t.Error("dev should default to false")
	}
	if *listPorts {
		t.Error("list-ports should default to false")
	}
	if *dbPath != "" || *profileName != "" || *configFile != "" {
		t.Error("db, profile and config should default to empty")
	}
}

func TestSettingsFromConfig_Defaults(t *testing.T) {
	s := settingsFromConfig(config.EmptySweepConfig())
	if s.resolution != 2048 || s.moveSize != 16 || s.headLength != 400 {
		t.Errorf("geometry = %d/%d/%v", s.resolution, s.moveSize, s.headLength)
	}
	if s.policy != sweep.PolicyResync {
		t.Errorf("policy = %v, want resync", s.policy)
	}
	if s.statsInterval != 10*time.Second {
		t.Errorf("statsInterval = %v", s.statsInterval)
	}
	if err := s.validate(); err != nil {
		t.Errorf("validate() error = %v", err)
	}
}

func TestApplyFlags(t *testing.T) {
	s := settingsFromConfig(config.EmptySweepConfig())

	*moveSize = 4
	*failFast = true
	*port = "/dev/ttyACM1"
	defer func() {
		*moveSize = sweep.DefaultMoveSize
		*failFast = false
		*port = config.DefaultPort
	}()

	// flags that were not set on the command line do not override
	s.applyFlags(map[string]bool{})
	if s.moveSize != 16 || s.policy != sweep.PolicyResync || s.port != config.DefaultPort {
		t.Fatalf("unset flags overrode settings: %+v", s)
	}

	s.applyFlags(map[string]bool{"move-size": true, "fail-fast": true, "port": true})
	if s.moveSize != 4 {
		t.Errorf("moveSize = %d, want 4", s.moveSize)
	}
	if s.policy != sweep.PolicyFailFast {
		t.Errorf("policy = %v, want fail-fast", s.policy)
	}
	if s.port != "/dev/ttyACM1" {
		t.Errorf("port = %q", s.port)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*settings)
	}{
		{"zero resolution", func(s *settings) { s.resolution = 0 }},
		{"move size too large", func(s *settings) { s.moveSize = s.resolution + 1 }},
		{"negative move size", func(s *settings) { s.moveSize = -1 }},
		{"bad parity", func(s *settings) { s.portOpts.Parity = "X" }},
		{"no listen", func(s *settings) { s.listen = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := settingsFromConfig(config.EmptySweepConfig())
			tt.mutate(&s)
			if err := s.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestProfileOverridesConfig(t *testing.T) {
	store, err := db.NewDB(filepath.Join(t.TempDir(), "p.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer store.Close()

	p := &db.SensorProfile{Name: "garage", PortPath: "/dev/ttyS3", BaudRate: 19200, Resolution: 1024, MoveSize: 8}
	if err := store.CreateProfile(p); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	for _, ref := range []string{"garage", "1"} {
		got, err := findProfile(store, ref)
		if err != nil {
			t.Fatalf("findProfile(%q) error = %v", ref, err)
		}
		s := settingsFromConfig(config.EmptySweepConfig())
		s.applyProfile(got)
		if s.port != "/dev/ttyS3" || s.resolution != 1024 || s.moveSize != 8 || s.portOpts.BaudRate != 19200 {
			t.Errorf("profile %q not applied: %+v", ref, s)
		}
	}

	if _, err := findProfile(store, "42"); !errors.Is(err, db.ErrProfileNotFound) {
		t.Errorf("findProfile(42) error = %v, want ErrProfileNotFound", err)
	}
}

func TestOpenSource(t *testing.T) {
	s := settingsFromConfig(config.EmptySweepConfig())

	failing := func(string, serialmux.PortOptions) (serialmux.SerialPorter, error) {
		return nil, errors.New("no such device")
	}
	if _, ok := openSource(s, false, failing).(*serialmux.DisabledSource); !ok {
		t.Error("open failure should fall back to DisabledSource")
	}

	port := serialmux.NewTestableSerialPort()
	var gotPath string
	var gotOpts serialmux.PortOptions
	opener := func(path string, opts serialmux.PortOptions) (serialmux.SerialPorter, error) {
		gotPath, gotOpts = path, opts
		return port, nil
	}
	src, ok := openSource(s, false, opener).(*serialmux.PortSource)
	if !ok {
		t.Fatal("expected a PortSource")
	}
	if gotPath != config.DefaultPort || !gotOpts.Equal(serialmux.PortOptions{}) {
		t.Errorf("opened %q with %v", gotPath, gotOpts)
	}
	src.Close()
	if !port.IsClosed() {
		t.Error("closing the source should close the port")
	}

	dev, ok := openSource(s, true, failing).(*serialmux.PortSource)
	if !ok {
		t.Fatal("dev mode should use a PortSource over the mock sensor")
	}
	dev.Close()
}

func TestPrintPorts(t *testing.T) {
	var out strings.Builder
	err := printPorts(&out, func() ([]string, error) {
		return []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, nil
	})
	if err != nil {
		t.Fatalf("printPorts error = %v", err)
	}
	if got, want := out.String(), "/dev/ttyUSB0\n/dev/ttyACM0\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	out.Reset()
	if err := printPorts(&out, func() ([]string, error) { return nil, nil }); err != nil {
		t.Fatalf("printPorts error = %v", err)
	}
	if got := out.String(); got != "no serial ports found\n" {
		t.Errorf("empty output = %q", got)
	}

	boom := errors.New("enumeration failed")
	if err := printPorts(&out, func() ([]string, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
