// Command bothand is the price-oracle daemon: it loads a registry, runs
// one worker per configured source, and serves GetPrices/GetInfo/
// UpdateRegistry over gRPC and REST.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bothan/internal/config"
	"bothan/internal/ipfs"
	"bothan/internal/manager"
	"bothan/internal/monitoring"
	"bothan/internal/pollworker"
	"bothan/internal/rpc"
	"bothan/internal/sources/binance"
	"bothan/internal/sources/coingecko"
	"bothan/internal/store"
	"bothan/internal/streamworker"
)

func main() {
	configPath := os.Getenv("BOTHAND_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	engine, err := store.OpenLevelDB(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open store at %s: %v", cfg.Store.Path, err)
	}
	st := store.New(engine)
	defer st.Close()

	var ipfsFetcher ipfs.Fetcher
	if cfg.Manager.IPFSGatewayURL != "" {
		ipfsFetcher = ipfs.NewGatewayFetcher(cfg.Manager.IPFSGatewayURL, 0)
	}

	var uplink monitoring.Uplink
	if cfg.Monitoring.Enabled {
		if cfg.Monitoring.Endpoint == "" {
			log.Fatalf("monitoring.enabled is true but monitoring.endpoint is empty")
		}
		uplink = monitoring.NewHTTPUplink(cfg.Monitoring.Endpoint)
		log.Printf("Monitoring uplink configured: %s", cfg.Monitoring.Endpoint)
	}

	streamingWorkers := make(map[string]manager.StreamingWorker)
	var streamRunners []*streamworker.Worker
	var pollRunners []*pollworker.Worker

	for _, sc := range cfg.Sources {
		switch sc.Type {
		case config.SourceStreaming:
			protocol, err := protocolFor(sc.Name)
			if err != nil {
				log.Fatalf("source %q: %v", sc.Name, err)
			}
			w := streamworker.New(sc.Name, sc.URL, streamworker.GorillaDialer{}, protocol, st, sc.HeartbeatTimeout())
			streamingWorkers[sc.Name] = w
			streamRunners = append(streamRunners, w)
		case config.SourcePolling:
			source, err := pollSourceFor(sc.Name)
			if err != nil {
				log.Fatalf("source %q: %v", sc.Name, err)
			}
			pollRunners = append(pollRunners, pollworker.New(source, st, sc.PollInterval()))
		default:
			log.Fatalf("source %q: unknown type %q", sc.Name, sc.Type)
		}
	}

	mgr := manager.New(st, ipfsFetcher, streamingWorkers, uplink)
	if err := mgr.Build(); err != nil {
		log.Fatalf("Failed to restore registry from store: %v", err)
	}
	if _, ok := mgr.Registry(); !ok {
		if err := installInitialRegistry(context.Background(), mgr, cfg); err != nil {
			log.Fatalf("Failed to install initial registry: %v", err)
		}
	}

	restServer := rpc.NewRESTServer(mgr, uplink, cfg.RPC.RESTAddr, cfg.Manager.Staleness(), cfg.Manager.RegistryVersionRequirement)
	grpcAdapter := rpc.NewGRPCServer(mgr, uplink, cfg.Manager.Staleness(), cfg.Manager.RegistryVersionRequirement)

	lis, err := net.Listen("tcp", cfg.RPC.GRPCAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.RPC.GRPCAddr, err)
	}
	grpcServer := rpc.NewGRPCServerHandle(grpcAdapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, w := range streamRunners {
		wg.Add(1)
		go func(w *streamworker.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	for _, w := range pollRunners {
		wg.Add(1)
		go func(w *pollworker.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	if uplink != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runHeartbeat(ctx, uplink, cfg.Monitoring.HeartbeatInterval())
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting REST server on %s", cfg.RPC.RESTAddr)
		if err := restServer.Start(); err != nil {
			log.Fatalf("REST server failed: %v", err)
		}
	}()
	go func() {
		log.Printf("Starting gRPC server on %s", cfg.RPC.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server stopped: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("REST server shutdown: %v", err)
	}
	grpcServer.GracefulStop()

	cancel()
	wg.Wait()
}

// protocolFor resolves the streamworker.Protocol implementation for a
// configured source name. Adding a new streaming upstream means adding a
// case here and a new internal/sources/<name> package.
func protocolFor(name string) (streamworker.Protocol, error) {
	switch name {
	case "binance":
		return binance.Protocol{}, nil
	default:
		return nil, errUnknownSource(name)
	}
}

// pollSourceFor resolves the pollworker.Source implementation for a
// configured polling source name.
func pollSourceFor(name string) (pollworker.Source, error) {
	switch name {
	case "coingecko":
		return coingecko.New("", 0), nil
	default:
		return nil, errUnknownSource(name)
	}
}

func errUnknownSource(name string) error {
	return &unknownSourceError{name: name}
}

type unknownSourceError struct{ name string }

func (e *unknownSourceError) Error() string {
	return "no implementation registered for source " + e.name
}

// installInitialRegistry installs the configured registry the first time
// bothand runs against an empty store.
func installInitialRegistry(ctx context.Context, mgr *manager.Manager, cfg *config.Config) error {
	if cfg.Manager.RegistryIPFSHash != "" {
		log.Printf("Installing initial registry from IPFS hash %s", cfg.Manager.RegistryIPFSHash)
		return mgr.SetRegistryFromIPFS(ctx, cfg.Manager.RegistryIPFSHash, cfg.Manager.RegistryVersionRequirement)
	}
	log.Printf("Installing initial registry from %s", cfg.Manager.RegistryPath)
	data, err := os.ReadFile(cfg.Manager.RegistryPath)
	if err != nil {
		return err
	}
	return mgr.SetRegistry(data, cfg.Manager.RegistryVersionRequirement)
}

// runHeartbeat publishes a liveness beacon for the daemon itself on every
// interval, until ctx is cancelled.
func runHeartbeat(ctx context.Context, uplink monitoring.Uplink, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := monitoring.Heartbeat(ctx, uplink, "bothand", time.Now()); err != nil {
				log.Printf("[heartbeat] publish: %v", err)
			}
		}
	}
}
