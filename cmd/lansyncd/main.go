// Command lansyncd is the lansync daemon: it loads (or creates) this
// device's identity, opens its local store, stands up the TLS
// transport listener, starts whichever discovery backend the config names,
// and drives one engine.Session per configured namespace on a periodic
// sync-round loop until told to stop.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/YAtOff/lansync/internal/clientpool"
	"github.com/YAtOff/lansync/internal/config"
	"github.com/YAtOff/lansync/internal/discovery"
	"github.com/YAtOff/lansync/internal/engine"
	"github.com/YAtOff/lansync/internal/eventlog"
	"github.com/YAtOff/lansync/internal/identity"
	"github.com/YAtOff/lansync/internal/model"
	"github.com/YAtOff/lansync/internal/observability"
	"github.com/YAtOff/lansync/internal/quicutil"
	"github.com/YAtOff/lansync/internal/ratelimit"
	"github.com/YAtOff/lansync/internal/stats"
	"github.com/YAtOff/lansync/internal/store"
	"github.com/YAtOff/lansync/internal/tasklist"
	"github.com/YAtOff/lansync/internal/transport"
)

// storeNodeSink adapts a single shared *store.Store to transport.NodeSink:
// an announced RemoteNode just upserts into the namespace already embedded
// in the node by the handler.
type storeNodeSink struct {
	store *store.Store
}

func (s storeNodeSink) EnqueueRemoteNode(namespace string, node model.RemoteNode) error {
	node.Namespace = namespace
	return s.store.UpsertRemoteNode(node)
}

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (defaults used if absent)")
	syncInterval := flag.Duration("sync-interval", 10*time.Second, "how often each namespace runs a sync round")
	metricsAddr := flag.String("metrics-address", ":9090", "address for the Prometheus /metrics and /healthz endpoints")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lansyncd: load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger("lansyncd", "dev", nil)
	metrics := observability.NewMetrics()

	tracingShutdown, err := observability.InitTracing(context.Background(), "lansyncd")
	if err != nil {
		logger.Fatal(err, "init tracing")
	}
	defer tracingShutdown(context.Background())

	passphrase := os.Getenv("LANSYNC_PASSPHRASE")
	if passphrase == "" && term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprint(os.Stderr, "Enter keystore passphrase (empty for none): ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			logger.Fatal(err, "read passphrase")
		}
		passphrase = string(pass)
	}

	kp, err := identity.LoadOrCreate(cfg.KeystorePath, passphrase)
	if err != nil {
		logger.Fatal(err, "load or create identity")
	}
	deviceID := kp.DeviceID()
	logger.Info(fmt.Sprintf("device identity: %s", deviceID))

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal(err, "open store")
	}
	defer st.Close()

	ledger, err := store.OpenGCLedger(cfg.GCLedgerPath)
	if err != nil {
		logger.Fatal(err, "open gc ledger")
	}
	defer ledger.Close()

	sink, err := stats.Open(cfg.StatsLogDirectory, deviceID)
	if err != nil {
		logger.Fatal(err, "open stats sink")
	}
	defer sink.Close()

	certPEM, keyPEM, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		logger.Fatal(err, "generate tls certificate")
	}
	serverTLS, err := quicutil.MakeTLSConfig(certPEM, keyPEM)
	if err != nil {
		logger.Fatal(err, "build server tls config")
	}
	clientTLS := quicutil.MakeClientTLSConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := discovery.NewPeerRegistry(cfg.LivenessWindow())

	pool := clientpool.New(cfg.ClientsPerPeer, func(id string) (clientpool.Client, error) {
		peer, ok := registry.Get(id)
		if !ok {
			return nil, fmt.Errorf("lansyncd: no known address for peer %s", id)
		}
		return transport.NewClient(id, peer.Address, peer.Port, clientTLS, cfg.ConnectTimeout, cfg.ReadTimeout), nil
	})

	eventClient := eventlog.NewClient(cfg.EventServerURL, cfg.ReadTimeout)
	eventHandler := eventlog.NewHandler(eventClient, st)
	gossip := ratelimit.NewTokenBucket(50, 100)

	server := transport.NewServer(st, st, storeNodeSink{store: st})
	listener, err := tls.Listen("tcp", cfg.ListenAddress, serverTLS)
	if err != nil {
		logger.Fatal(err, "listen for transport")
	}
	go func() {
		if err := http.Serve(listener, server); err != nil && ctx.Err() == nil {
			logger.Error(err, "transport listener stopped")
		}
	}()
	logger.Info(fmt.Sprintf("transport listening on %s", cfg.ListenAddress))

	healthChecker := observability.NewHealthChecker("dev")
	healthChecker.RegisterCheck("transport", observability.TransportListenerCheck(cfg.ListenAddress))
	healthChecker.RegisterCheck("keystore", observability.KeystoreCheck(kp != nil))
	healthChecker.RegisterCheck("database", observability.DatabaseCheck(cfg.DBPath))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", healthChecker.Handler())
	go func() {
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && ctx.Err() == nil {
			logger.Error(err, "metrics listener stopped")
		}
	}()

	go runDiscovery(ctx, cfg, deviceID, registry, logger)

	gcStop := make(chan struct{})
	defer close(gcStop)

	var wg sync.WaitGroup
	for namespace, rootPath := range cfg.Namespaces {
		if err := st.EnsureNamespace(namespace, filepath.Base(rootPath), rootPath); err != nil {
			logger.Fatal(err, "ensure namespace")
		}
		if err := st.RegisterDevice(namespace, deviceID); err != nil {
			logger.Fatal(err, "register device")
		}

		// Chunk bytes live inside each namespace's synced files rather than
		// a separate content-addressed blob store, so there is no standalone
		// chunk file for the GC sweep to unlink; it still prunes the ledger
		// and chunk/node_chunk rows that outlive every referencing node.
		go store.RunGC(ledger, st, namespace, cfg.GCInterval, cfg.GCMaxAge, func(hash string) string {
			return filepath.Join(cfg.DataDirectory, "chunk-cache", hash)
		}, gcStop)

		sess := engine.NewSession(
			namespace, filepath.Base(rootPath), rootPath, deviceID,
			st, pool, registry, tasklist.New(cfg.WorkerCount),
			eventHandler, sink, metrics, logger, gossip,
			cfg.ChunkSize, cfg.ChunkSize,
		)

		wg.Add(1)
		go func(namespace string) {
			defer wg.Done()
			runSyncLoop(ctx, sess, namespace, *syncInterval, logger)
		}(namespace)
	}

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	<-stopSignal
	logger.Info("shutting down")
	cancel()
	listener.Close()
	wg.Wait()
}

// runSyncLoop repeatedly calls RunSyncRound for one namespace until ctx is
// cancelled, fetching fresh remote events first so each round sees whatever
// the event log has learned since the last pass.
func runSyncLoop(ctx context.Context, sess *engine.Session, namespace string, interval time.Duration, logger *observability.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if sess.Events != nil {
			if _, err := sess.Events.HandleNewEvents(ctx, namespace); err != nil {
				logger.Error(err, "fetch new events")
			}
		}
		if err := sess.RunSyncRound(ctx); err != nil {
			logger.Error(err, "sync round failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runDiscovery(ctx context.Context, cfg *config.Config, deviceID string, registry *discovery.PeerRegistry, logger *observability.Logger) {
	_, port, err := listenAddressParts(cfg.ListenAddress)
	if err != nil {
		logger.Error(err, "parse listen address for discovery announcement")
		return
	}

	var namespace string
	for ns := range cfg.Namespaces {
		namespace = ns
		break
	}

	switch cfg.DiscoveryBackend {
	case config.DiscoveryCentralRegistry:
		d := &discovery.CentralizedRegistryDiscovery{
			DeviceID:     deviceID,
			Namespace:    namespace,
			Port:         port,
			RegistryURL:  cfg.RegistryURL,
			PingInterval: cfg.DiscoveryPingInterval,
			Registry:     registry,
		}
		if err := d.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error(err, "centralized discovery stopped")
		}
	default:
		d := &discovery.UDPBroadcastDiscovery{
			DeviceID:      deviceID,
			Namespace:     namespace,
			Port:          port,
			BroadcastPort: 9442,
			PingInterval:  cfg.DiscoveryPingInterval,
			Registry:      registry,
		}
		if err := d.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error(err, "udp discovery stopped")
		}
	}
}

func listenAddressParts(addr string) (host string, port int, err error) {
	h, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("lansyncd: cannot parse listen address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("lansyncd: cannot parse listen port in %q: %w", addr, err)
	}
	return h, p, nil
}
