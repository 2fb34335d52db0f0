package igc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidFormat is matched by every FormatError.
var ErrInvalidFormat = errors.New("invalid file format")

// FormatError reports input that is not an IGC log. The only fatal
// condition is a missing or malformed A-record.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidFormat, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrInvalidFormat }

const maxLineLength = 1 << 16

// Parse parses the text of an IGC file.
func Parse(raw string) (*FlightLog, error) {
	return ParseReader(strings.NewReader(raw))
}

// ParseReader parses an IGC log line by line. Unrecognised and malformed
// lines are skipped, including lines longer than maxLineLength.
func ParseReader(r io.Reader) (*FlightLog, error) {
	br := bufio.NewReader(r)

	log := &FlightLog{}
	var haveA, haveDate bool
	for {
		line, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("igc: read: %w", err)
		}

		switch rec := ParseRecord(line).(type) {
		case ARecord:
			if !haveA {
				log.Manufacturer = rec.Manufacturer
				log.DeviceID = rec.DeviceID
				log.DeviceName = rec.DeviceName
				haveA = true
			}
		case DateRecord:
			if !haveDate {
				log.Date = rec.Date
				haveDate = true
			}
		case HRecord:
			log.Headers = append(log.Headers, rec.Field)
		case BRecord:
			log.Fixes = append(log.Fixes, rec.Fix)
		case LRecord:
			log.Extensions = append(log.Extensions, rec.Extension)
		}
	}
	if !haveA {
		return nil, &FormatError{Reason: "missing A record"}
	}
	log.indexOnce.Do(log.index)
	return log, nil
}

// readLine returns the next line without its terminator. A line longer than
// maxLineLength is consumed and returned as "", which classifies as unknown.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && (len(buf) > 0 || tooLong) {
				break
			}
			return "", err
		}
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > maxLineLength {
				buf, tooLong = nil, true
			}
		}
		if !isPrefix {
			break
		}
	}
	return string(buf), nil
}
