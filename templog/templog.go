// Package templog periodically queries the temperature sensor and appends
// the readings to a text log.
package templog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"ammcon/protocol"
)

const (
	// Command is the vocabulary entry queried each interval.
	Command = "temp"

	// FileName is created inside the configured directory.
	FileName = "temp_log.txt"

	DefaultInterval = time.Minute

	timeLayout = "2006-01-02 15:04"
)

var ErrBadReading = errors.New("bad sensor reading")

// Submitter is the part of the broker the logger needs.
type Submitter interface {
	SubmitContext(ctx context.Context, name string) (*protocol.Response, error)
}

// Reading is one sensor sample.
type Reading struct {
	Temperature float64 // degC
	Humidity    float64 // %RH
}

func (r Reading) String() string {
	return fmt.Sprintf("%.2fdegC @%.1f%%RH", r.Temperature, r.Humidity)
}

// ParseReading extracts a Reading from an acknowledged sensor response.
// The payload is [temp whole, temp hundredths, humidity whole, humidity
// hundredths].
func ParseReading(resp *protocol.Response) (Reading, error) {
	if resp == nil || !resp.Acked() {
		return Reading{}, fmt.Errorf("%w: not acknowledged", ErrBadReading)
	}
	p := resp.Payload
	if len(p) != 4 {
		return Reading{}, fmt.Errorf("%w: payload has %d bytes, want 4", ErrBadReading, len(p))
	}
	return Reading{
		Temperature: float64(p[0]) + 0.01*float64(p[1]),
		Humidity:    float64(p[2]) + 0.01*float64(p[3]),
	}, nil
}

type Logger struct {
	sub      Submitter
	path     string
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time
}

// New returns a Logger writing to dir/FileName. A non-positive interval
// means DefaultInterval.
func New(sub Submitter, dir string, interval time.Duration) *Logger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Logger{
		sub:      sub,
		path:     filepath.Join(dir, FileName),
		interval: interval,
		logger:   log.Default(),
		now:      time.Now,
	}
}

// Path returns the log file location.
func (l *Logger) Path() string {
	return l.path
}

// Run samples immediately and then once per interval until ctx is done.
// Failed samples are logged and skipped.
func (l *Logger) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if _, err := l.Sample(ctx); err != nil && ctx.Err() == nil {
			l.logger.Printf("templog: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sample queries the sensor, retrying once, and appends the result to the
// log file.
func (l *Logger) Sample(ctx context.Context) (Reading, error) {
	r, err := l.query(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Reading{}, err
		}
		l.logger.Printf("templog: %v; retrying", err)
		if r, err = l.query(ctx); err != nil {
			return Reading{}, fmt.Errorf("no valid reading: %w", err)
		}
	}

	if err := l.append(r); err != nil {
		return r, err
	}
	return r, nil
}

func (l *Logger) query(ctx context.Context) (Reading, error) {
	resp, err := l.sub.SubmitContext(ctx, Command)
	if err != nil {
		return Reading{}, err
	}
	return ParseReading(resp)
}

func (l *Logger) append(r Reading) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temperature log: %w", err)
	}
	_, err = fmt.Fprintf(f, "%s, %s\n", l.now().Format(timeLayout), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write temperature log: %w", err)
	}
	return nil
}
