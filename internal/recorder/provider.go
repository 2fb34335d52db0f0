package recorder

import "context"

// Source is the interface for flight recorders that can hand over an IGC
// log.
type Source interface {
	Name() string
	Connect() error
	Close() error
	// Download returns the raw IGC text of the recorder's flight. It blocks
	// until the transfer is complete or ctx is done.
	Download(ctx context.Context) ([]byte, error)
}

// Config holds configuration for the serial recorder source.
type Config struct {
	PortPath      string `yaml:"port_path" json:"portPath"`
	BaudRate      int    `yaml:"baud_rate" json:"baudRate"`
	IdleTimeoutMs int    `yaml:"idle_timeout_ms" json:"idleTimeoutMs"` // end of transfer after this much silence
}
