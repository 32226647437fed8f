// Package natsconn opens the process NATS connection and logs its lifecycle.
package natsconn

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/config"
	"github.com/example/animefan/internal/platform/logging"
)

// Options configures the connection. Zero values fall back to NATS_* env
// vars and then to built-in defaults.
type Options struct {
	URL           string
	Name          string
	MaxReconnects int           // NATS_MAX_RECONNECTS, 5
	ReconnectWait time.Duration // NATS_RECONNECT_WAIT, 2s
	Timeout       time.Duration // NATS_CONNECT_TIMEOUT, 2s
	Logger        *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = config.String("NATS_URL", nats.DefaultURL)
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = config.Int("NATS_MAX_RECONNECTS", 5)
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = config.Duration("NATS_RECONNECT_WAIT", 2*time.Second)
	}
	if o.Timeout <= 0 {
		o.Timeout = config.Duration("NATS_CONNECT_TIMEOUT", 2*time.Second)
	}
	o.Logger = logging.OrNop(o.Logger).Named("nats")
	return o
}

// Connect dials once and fails fast; reconnects apply only after the first
// successful connection.
func Connect(opts Options) (*nats.Conn, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	natsOpts := []nats.Option{
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.Timeout(opts.Timeout),
		nats.RetryOnFailedConnect(false),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrlRedacted()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("connection closed")
		}),
	}
	if opts.Name != "" {
		natsOpts = append(natsOpts, nats.Name(opts.Name))
	}
	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s (max_reconnects=%d, wait=%s): %w",
			opts.URL, opts.MaxReconnects, opts.ReconnectWait, err)
	}
	return nc, nil
}

// JetStream returns a JetStream context for nc, or nil for a nil connection.
func JetStream(nc *nats.Conn) (nats.JetStreamContext, error) {
	if nc == nil {
		return nil, nil
	}
	return nc.JetStream()
}
