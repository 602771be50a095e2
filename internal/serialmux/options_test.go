package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalise_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	want := PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalise() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalise(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"explicit", PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"}, PortOptions{115200, 7, 2, "E"}, false},
		{"negative baud defaults", PortOptions{BaudRate: -5}, PortOptions{9600, 8, 1, "N"}, false},
		{"parity words", PortOptions{Parity: " odd "}, PortOptions{9600, 8, 1, "O"}, false},
		{"parity none", PortOptions{Parity: "none"}, PortOptions{9600, 8, 1, "N"}, false},
		{"odd baud", PortOptions{BaudRate: 12345}, PortOptions{}, true},
		{"data bits too high", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"data bits too low", PortOptions{DataBits: 4}, PortOptions{}, true},
		{"stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"parity mark", PortOptions{Parity: "M"}, PortOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalise()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalise() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Normalise() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptions_Equal(t *testing.T) {
	if !(PortOptions{}).Equal(PortOptions{BaudRate: 9600, Parity: "none"}) {
		t.Error("defaulted options should equal their explicit form")
	}
	if (PortOptions{BaudRate: 9600}).Equal(PortOptions{BaudRate: 19200}) {
		t.Error("different baud rates should not be equal")
	}
	if (PortOptions{DataBits: 9}).Equal(PortOptions{DataBits: 9}) {
		t.Error("invalid options should never be equal")
	}
}

func TestPortOptions_String(t *testing.T) {
	if got := (PortOptions{}).String(); got != "9600 8N1" {
		t.Errorf("String() = %q, want %q", got, "9600 8N1")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 19200, DataBits: 7, StopBits: 2, Parity: "O"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.BaudRate != 19200 || mode.DataBits != 7 {
		t.Errorf("mode = %+v", mode)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Parity = %v, want OddParity", mode.Parity)
	}

	mode, err = PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.Parity != serial.NoParity || mode.StopBits != serial.OneStopBit {
		t.Errorf("default mode = %+v", mode)
	}

	if _, err := (PortOptions{StopBits: 5}).SerialMode(); err == nil {
		t.Error("expected error for invalid options")
	}
}

func TestOpenPort_InvalidPath(t *testing.T) {
	port, err := OpenPort("/dev/nonexistent-serial-port-12345", PortOptions{})
	if err == nil {
		port.Close()
		t.Fatal("expected error when opening non-existent serial port")
	}
}

func TestOpenPort_InvalidOptions(t *testing.T) {
	if _, err := OpenPort("/dev/null", PortOptions{DataBits: 2}); err == nil {
		t.Fatal("expected validation error before open")
	}
}
