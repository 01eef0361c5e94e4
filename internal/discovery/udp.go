package discovery

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"
)

// discoveryMessage is the payload broadcast on the wire, the Go equivalent
// of the original's pydantic DiscoveryMessage.
type discoveryMessage struct {
	DeviceID  string `json:"device_id"`
	Namespace string `json:"namespace"`
	Port      int    `json:"port"`
}

// UDPBroadcastDiscovery is the "no coordinator" discovery backend: it
// periodically broadcasts a DiscoveryMessage over UDP and listens for the
// same from other peers, feeding a PeerRegistry. Grounded on the original's
// broadcast_discovery.py Sender/Receiver pair.
type UDPBroadcastDiscovery struct {
	DeviceID     string
	Namespace    string
	Port         int
	BroadcastPort int
	PingInterval time.Duration
	Registry     *PeerRegistry
}

// Run starts the broadcast sender and the receive listener, blocking until
// ctx is cancelled. Intended to be run in its own goroutine.
func (d *UDPBroadcastDiscovery) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- d.sendLoop(ctx) }()
	go func() { errCh <- d.receiveLoop(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (d *UDPBroadcastDiscovery) sendLoop(ctx context.Context) error {
	msg := discoveryMessage{DeviceID: d.DeviceID, Namespace: d.Namespace, Port: d.Port}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return err
	}
	defer conn.Close()

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: d.BroadcastPort}
	ticker := time.NewTicker(d.PingInterval)
	defer ticker.Stop()

	for {
		if _, err := conn.WriteTo(payload, broadcastAddr); err != nil {
			// A transient network error shouldn't kill the whole discovery
			// loop; the next tick tries again.
			_ = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *UDPBroadcastDiscovery) receiveLoop(ctx context.Context) error {
	conn, err := net.ListenPacket("udp4", ":"+strconv.Itoa(d.BroadcastPort))
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		var msg discoveryMessage
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			continue
		}
		if msg.DeviceID == d.DeviceID || msg.Namespace != d.Namespace {
			continue
		}

		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			host = addr.String()
		}
		d.Registry.Observe(msg.DeviceID, host, msg.Port)
	}
}
