package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	readTimeout     = 200 * time.Millisecond
	maxDownloadSize = 32 << 20
)

var (
	ErrNotConnected = errors.New("recorder: not connected")
	ErrNoData       = errors.New("recorder: no data received")
	ErrTooLarge     = errors.New("recorder: download exceeds size limit")
)

// SerialSource receives an IGC log that a recorder sends over a UART or
// USB serial link. The transfer is considered complete once the line has
// been idle for the configured timeout.
type SerialSource struct {
	portPath    string
	baudRate    int
	idleTimeout time.Duration
	port        serial.Port
}

// NewSerial creates a new serial recorder source.
func NewSerial(cfg Config) *SerialSource {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 57600
	}
	idle := time.Duration(cfg.IdleTimeoutMs) * time.Millisecond
	if idle < readTimeout {
		idle = 3 * time.Second
	}
	return &SerialSource{
		portPath:    cfg.PortPath,
		baudRate:    cfg.BaudRate,
		idleTimeout: idle,
	}
}

func (s *SerialSource) Name() string { return "Serial recorder " + s.portPath }

func (s *SerialSource) Connect() error {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.portPath, mode)
	if err != nil {
		return fmt.Errorf("recorder: failed to open %s: %w", s.portPath, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("recorder: set read timeout: %w", err)
	}
	s.port = port
	log.WithField("component", "recorder").Infof("connected to %s at %d baud", s.portPath, s.baudRate)
	return nil
}

func (s *SerialSource) Close() error {
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}

func (s *SerialSource) Download(ctx context.Context) ([]byte, error) {
	if s.port == nil {
		return nil, ErrNotConnected
	}
	return readLog(ctx, s.port, s.idleTimeout)
}

// readLog reads from r until EOF or until it has seen data followed by idle
// of silence. r must return (0, nil) when its read timeout expires, as
// serial ports do.
func readLog(ctx context.Context, r io.Reader, idle time.Duration) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, 4096)
	var lastData time.Time

	for {
		// A cancelled transfer is incomplete even if data has arrived.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
			lastData = time.Now()
			if out.Len() > maxDownloadSize {
				return nil, ErrTooLarge
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("recorder: read: %w", err)
		}
		if n == 0 && !lastData.IsZero() && time.Since(lastData) >= idle {
			break
		}
	}

	if out.Len() == 0 {
		return nil, ErrNoData
	}
	log.WithField("component", "recorder").Debugf("received %d bytes", out.Len())
	return out.Bytes(), nil
}
