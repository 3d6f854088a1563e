package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/curvex-trading/curvex/internal/blacklist"
	"github.com/curvex-trading/curvex/internal/broadcast"
	"github.com/curvex-trading/curvex/internal/config"
	"github.com/curvex-trading/curvex/internal/enrich"
	"github.com/curvex-trading/curvex/internal/executor"
	"github.com/curvex-trading/curvex/internal/geyser"
	"github.com/curvex-trading/curvex/internal/pipeline"
	"github.com/curvex-trading/curvex/internal/pool"
	"github.com/curvex-trading/curvex/internal/solana"
	"github.com/curvex-trading/curvex/internal/stream"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use stub RPC (no real Solana connection)")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("CURVEX Launch Sniper - Starting")
	log.Info().Msg("DETECT -> ENRICH -> FILTER -> ACQUIRE")
	log.Info().Msg("=============================================")

	dryRun := cfg.General.DryRun
	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Bool("dry_run", dryRun).
		Bool("stub_mode", *stubMode).
		Bool("geyser", cfg.Geyser.Enabled).
		Bool("watch_amm", cfg.Stream.WatchAMM).
		Msg("Configuration loaded")

	// 4. Load runtime parameters and the blacklist.
	params, err := config.LoadParams(cfg.Files.ParamsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load params from %s: %v\n", cfg.Files.ParamsPath, err)
		os.Exit(1)
	}
	log.Info().
		Uint64("lamport_amount", params.LamportAmount).
		Uint64("priority_fee", params.PriorityFee).
		Float64("slippage", params.Slippage).
		Uint64("bribe", params.Bribe).
		Bool("use_leader_send", params.UseLeaderSend).
		Int("filters", len(params.Filters.Filters)).
		Msg("Runtime parameters loaded")

	deny, err := blacklist.Load(cfg.Files.BlacklistPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load blacklist from %s: %v\n", cfg.Files.BlacklistPath, err)
		os.Exit(1)
	}
	bannedWallets, bannedSocials := deny.Len()
	log.Info().
		Int("wallets", bannedWallets).
		Int("socials", bannedSocials).
		Msg("Blacklist loaded")

	// 5. Create the RPC client (stub or live).
	var rpc solana.RPCClient
	var liveRPC *solana.LiveRPCClient
	if *stubMode {
		rpc = solana.NewStubRPCClient()
		log.Warn().Msg("Solana RPC: STUB MODE - no real connection")
	} else {
		liveRPC = solana.NewLiveRPCClient(solana.RPCConfig{
			Endpoint:     cfg.RPC.Endpoint,
			WSEndpoint:   cfg.RPC.WSEndpoint,
			Timeout:      time.Duration(cfg.RPC.TimeoutMs) * time.Millisecond,
			MaxRetries:   cfg.RPC.MaxRetries,
			RateLimitRPS: cfg.RPC.RateLimitRPS,
			PrivateKey:   cfg.RPC.PrivateKey,
		})
		rpc = liveRPC
		defer liveRPC.Close()

		// Verify RPC connectivity.
		healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := liveRPC.Health(healthCtx); err != nil {
			log.Warn().Err(err).Str("endpoint", cfg.RPC.Endpoint).
				Msg("Solana RPC health check failed (continuing, may be rate-limited)")
		} else {
			log.Info().Str("endpoint", cfg.RPC.Endpoint).Msg("Solana RPC: LIVE - connected")
		}
		healthCancel()
	}

	// 6. Create the relay client and the signing wallet.
	relay := solana.NewRelayClient(solana.RelayConfig{
		Endpoint:  cfg.Relay.Endpoint,
		TipSOL:    decimal.NewFromFloat(cfg.Relay.TipSOL),
		TimeoutMs: cfg.Relay.TimeoutMs,
	})
	log.Info().Str("endpoint", cfg.Relay.Endpoint).Msg("Relay client initialized")

	var signer types.Account
	if cfg.RPC.PrivateKey != "" {
		signer, err = types.AccountFromBase58(cfg.RPC.PrivateKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: invalid wallet private key: %v\n", err)
			os.Exit(1)
		}
		log.Info().Str("wallet", signer.PublicKey.ToBase58()).Msg("Wallet loaded")
	} else {
		if !dryRun && !*stubMode {
			fmt.Fprintln(os.Stderr, "FATAL: rpc.private_key is required unless dry_run or stub mode is set")
			os.Exit(1)
		}
		signer = types.NewAccount()
		log.Warn().Str("wallet", signer.PublicKey.ToBase58()).
			Msg("No private key configured, using an ephemeral wallet")
	}

	// 7. Create the acquisition engine.
	engine := executor.New(executor.Config{
		LamportAmount: params.LamportAmount,
		PriorityFee:   params.PriorityFee,
		Slippage:      params.Slippage,
		TipLamports:   params.Bribe,
		UseLeaderSend: params.UseLeaderSend,
	}, rpc, relay, signer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var feeEstimator *solana.PriorityFeeEstimator
	if liveRPC != nil {
		feeEstimator = solana.NewPriorityFeeEstimator(liveRPC)
		engine.SetFeeSource(feeEstimator)
		go feeEstimator.Start(ctx)
		log.Info().Msg("Priority fee estimator started")
	}

	// 8. Create the event sources.
	streamConfig := stream.DefaultConfig()
	streamConfig.WSEndpoint = cfg.RPC.WSEndpoint
	streamConfig.QueueSize = cfg.Stream.QueueSize
	if cfg.Stream.WatchAMM {
		streamConfig.Programs = append(streamConfig.Programs, solana.AMMProgram)
	}
	monitor := stream.NewMonitor(streamConfig)
	events := monitor.Start(ctx)
	log.Info().
		Str("ws_endpoint", streamConfig.WSEndpoint).
		Int("programs", len(streamConfig.Programs)).
		Msg("Log-stream monitor started")

	var geyserMonitor *geyser.Monitor
	if cfg.Geyser.Enabled {
		geyserConfig := geyser.DefaultConfig()
		geyserConfig.Endpoint = cfg.Geyser.Endpoint
		geyserConfig.XToken = cfg.Geyser.XToken
		geyserConfig.QueueSize = cfg.Stream.QueueSize
		geyserMonitor = geyser.NewMonitor(geyserConfig)
		events = mergeEnvelopes(events, geyserMonitor.Start(ctx))
		log.Info().Str("endpoint", cfg.Geyser.Endpoint).Msg("Geyser monitor started")
	}

	// 9. Create the pool, broadcaster, enrichment client and pipeline.
	tokens := pool.New(0)
	dups := pool.NewDupIndex()
	hub := broadcast.NewHub()
	enricher := enrich.NewClient(enrich.Config{
		HistoryEndpoint: cfg.Enrich.HistoryEndpoint,
		TimeoutMs:       cfg.Enrich.TimeoutMs,
	})

	deps := pipeline.Deps{
		Pool:     tokens,
		Dups:     dups,
		Enricher: enricher,
		Hub:      hub,
		Deny:     deny,
		Price:    enricher.FetchSOLPrice,
		Filters:  params.Filters,
	}
	if dryRun {
		log.Warn().Msg("DRY RUN - launches are admitted but never bought")
	} else {
		deps.Acquirer = engine
	}
	pipe := pipeline.New(pipeline.DefaultConfig(), deps)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipe.Run(ctx, events)
	}()
	log.Info().Msg("Pipeline started")

	// 10. Handle shutdown signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 11. HTTP server: health, stats and the viewer websocket.
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"ok","instance":"%s"}`, cfg.General.InstanceID)
		})
		mux.HandleFunc("/ws", hub.ServeWS)
		mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			stats := map[string]any{
				"stream":   monitor.Stats(),
				"pipeline": pipe.Stats(),
				"pool":     tokens.Stats(),
				"executor": engine.Stats(),
				"relay":    relay.Stats(),
				"hub":      hub.Stats(),
				"enrich":   enricher.Stats(),
			}
			if geyserMonitor != nil {
				stats["geyser"] = geyserMonitor.Stats()
			}
			if liveRPC != nil {
				stats["rpc"] = liveRPC.Stats()
			}
			if feeEstimator != nil {
				stats["fees"] = feeEstimator.Stats()
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(stats)
		})

		server := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("HTTP server started (health + stats + ws)")

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Shutdown(shutdownCtx)
		}()

		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Error().Err(srvErr).Msg("HTTP server error")
		}
	}()

	// Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ms := monitor.Stats()
				ps := pipe.Stats()
				es := engine.Stats()
				logEvt := log.Info().
					Int64("ws_connected", ms.Connected).
					Int64("events", ms.EventsEmitted).
					Int64("consumed", ps.Consumed).
					Int64("admitted", ps.Admitted).
					Int64("duplicates", ps.Duplicates).
					Int64("filtered_out", ps.FilteredOut).
					Int64("acquires", es.Attempts).
					Int64("failures", es.Failures).
					Int("pooled", tokens.Len()).
					Int("viewers", hub.Len()).
					Float64("sol_price", ps.SOLPrice)
				if feeEstimator != nil {
					logEvt = logEvt.Uint64("fee_p75", feeEstimator.Stats().P75Lamports)
				}
				logEvt.Msg("[STATS]")
			}
		}
	}()

	log.Info().Msg("CURVEX Launch Sniper - Running")
	log.Info().Msg("Monitoring for new launches...")

	// 12. Block until shutdown.
	<-ctx.Done()

	log.Info().Msg("Shutting down...")
	if feeEstimator != nil {
		feeEstimator.Stop()
	}
	wg.Wait()

	// Final stats.
	ps := pipe.Stats()
	es := engine.Stats()
	log.Info().
		Int64("consumed", ps.Consumed).
		Int64("admitted", ps.Admitted).
		Int64("trades", ps.Trades).
		Int64("acquire_attempts", es.Attempts).
		Int64("direct_sends", es.DirectSends).
		Int64("relay_sends", es.RelaySends).
		Int64("failures", es.Failures).
		Msg("CURVEX Launch Sniper - Final Statistics")

	log.Info().Msg("CURVEX Launch Sniper - Shutdown complete")
}

// mergeEnvelopes fans two event sources into one channel. The merged channel
// closes once both inputs close.
func mergeEnvelopes(a, b <-chan stream.Envelope) <-chan stream.Envelope {
	out := make(chan stream.Envelope, cap(a))
	var wg sync.WaitGroup
	forward := func(in <-chan stream.Envelope) {
		defer wg.Done()
		for env := range in {
			out <- env
		}
	}
	wg.Add(2)
	go forward(a)
	go forward(b)
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "curvex").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "curvex").
			Str("instance", general.InstanceID).Logger()
	}
}
