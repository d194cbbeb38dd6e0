package serial

import "io"

// Port is the host side of the console link. The governor boards enumerate
// as USB CDC, so the same interface also fits a mock port in tests.
type Port interface {
	io.ReadWriteCloser

	// Flush pushes any buffered output to the wire.
	Flush() error
}

// Config holds the serial port settings.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string

	// Baud rate. USB CDC ignores it; real UART consoles run 115200.
	Baud int

	// Read timeout in milliseconds, 0 for blocking reads.
	ReadTimeout int
}

// DefaultConfig returns the standard console settings for device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
