// Package mdns advertises the producer's gRPC address on the local
// network and lets workers and the relaycc CLI discover it without a
// `-producer` flag, per SPEC_FULL.md §6's optional mDNS auxiliary
// interface. Grounded in the teacher's discovery/mdns package; the
// worker-announce / coordinator-browses-workers direction is dropped
// entirely since relaycc's workers dial out to the producer rather than
// being discovered by it (see DESIGN.md).
package mdns

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

const (
	// ServiceType identifies relaycc's producer on the network.
	ServiceType = "_relaycc-producer._tcp"
	Domain      = "local."
)

// ParseTXTRecords parses TXT records back into a map.
func ParseTXTRecords(txt []string) map[string]string {
	result := make(map[string]string)
	for _, record := range txt {
		parts := strings.SplitN(record, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}

// AnnouncerConfig holds producer announcer configuration.
type AnnouncerConfig struct {
	Instance   string // e.g. "producer-hostname"
	GRPCPort   int
	HTTPPort   int // dashboard port
	Version    string
	InstanceID string // unique ID for this producer instance
}

// Announcer advertises the producer's gRPC and dashboard addresses via
// mDNS so workers and clients can find it without configuration.
type Announcer struct {
	mu     sync.Mutex
	server *zeroconf.Server
	cfg    AnnouncerConfig
}

// NewAnnouncer creates a new producer mDNS announcer.
func NewAnnouncer(cfg AnnouncerConfig) *Announcer {
	return &Announcer{cfg: cfg}
}

// Start begins advertising the producer via mDNS.
func (a *Announcer) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return fmt.Errorf("producer announcer already started")
	}

	txt := a.buildTXTRecords()

	log.Debug().
		Str("instance", a.cfg.Instance).
		Int("grpc_port", a.cfg.GRPCPort).
		Int("http_port", a.cfg.HTTPPort).
		Strs("txt", txt).
		Msg("starting producer mDNS announcer")

	server, err := zeroconf.Register(
		a.cfg.Instance,
		ServiceType,
		Domain,
		a.cfg.GRPCPort,
		txt,
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("register producer mDNS: %w", err)
	}

	a.server = server

	log.Info().
		Str("instance", a.cfg.Instance).
		Str("service", ServiceType).
		Int("grpc_port", a.cfg.GRPCPort).
		Msg("producer mDNS announcer started")

	return nil
}

func (a *Announcer) buildTXTRecords() []string {
	txt := []string{
		"grpc_port=" + strconv.Itoa(a.cfg.GRPCPort),
		"http_port=" + strconv.Itoa(a.cfg.HTTPPort),
	}
	if a.cfg.Version != "" {
		txt = append(txt, "version="+a.cfg.Version)
	}
	if a.cfg.InstanceID != "" {
		txt = append(txt, "instance_id="+a.cfg.InstanceID)
	}
	return txt
}

// Stop stops advertising the producer.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		log.Info().Str("instance", a.cfg.Instance).Msg("producer mDNS announcer stopped")
	}
}
