package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codemage/internal/logging"
)

// NATSSink publishes events as JSON to <prefix>.<generation>.<type>.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewNATSSink creates a sink on an existing connection.
func NewNATSSink(nc *nats.Conn, prefix string, logger *logging.Logger) *NATSSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATSSink{nc: nc, prefix: prefix, logger: logger.Named("events.nats")}
}

// Connect dials url and returns a sink that owns the connection.
func Connect(url, prefix string, logger *logging.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("codemage"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return NewNATSSink(nc, prefix, logger), nil
}

// Subject returns the subject e is published on.
func (s *NATSSink) Subject(e Event) string {
	gen := e.GenerationID
	if gen == "" {
		gen = "none"
	}
	return fmt.Sprintf("%s.%s.%s", s.prefix, gen, e.Type)
}

// Emit publishes e. Publish errors are logged, not returned.
func (s *NATSSink) Emit(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Error(ctx, "marshal event", zap.Error(err))
		return
	}
	if err := s.nc.Publish(s.Subject(e), data); err != nil {
		s.logger.Warn(ctx, "publish event", zap.String("subject", s.Subject(e)), zap.Error(err))
	}
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}
