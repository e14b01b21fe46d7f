package probe

import (
	"log"

	"NetSpeedMonitor/internal/config"
	"NetSpeedMonitor/internal/model"

	"github.com/nats-io/nats.go"
)

// SnapshotHandler processes a received snapshot.
type SnapshotHandler func(snapshot *model.Snapshot)

// Subscriber is responsible for subscribing to a NATS subject and processing messages.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("netspeed-subscriber"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", url)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to the configured subject and hands every decoded
// snapshot to handler. Undecodable messages are logged and skipped.
func (s *Subscriber) Start(handler SnapshotHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		snapshot, err := DecodeSnapshot(msg.Data)
		if err != nil {
			log.Printf("Subscriber: dropping message: %v", err)
			return
		}
		handler(snapshot)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for messages...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
