package broker

import "log"

const defaultQueueSize = 16

type config struct {
	logger    *log.Logger
	queueSize int
}

func defaultConfig() config {
	return config{
		logger:    log.Default(),
		queueSize: defaultQueueSize,
	}
}

// Option configures a Broker.
type Option func(*config)

// WithLogger sets the logger used for per-exchange logging.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithQueueSize sets how many requests may wait behind the one in flight
// before Submit blocks.
func WithQueueSize(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.queueSize = n
		}
	}
}
