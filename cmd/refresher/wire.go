package main

import (
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/config"
	"github.com/pysugar/codex-status-fleet/internal/db"
	"github.com/pysugar/codex-status-fleet/internal/probe"
	"github.com/pysugar/codex-status-fleet/internal/probe/anthropic"
	"github.com/pysugar/codex-status-fleet/internal/probe/codex"
	"github.com/pysugar/codex-status-fleet/internal/probe/fireworks"
	"github.com/pysugar/codex-status-fleet/internal/refresh"
	"github.com/pysugar/codex-status-fleet/internal/sink"
)

// app holds the wired collaborators shared by the commands.
type app struct {
	cfg         *config.Config
	registry    *accounts.Registry
	coordinator *refresh.Coordinator
	journal     *db.Journal
	metrics     *prometheus.Registry
}

func wireApp(cfg *config.Config) (*app, error) {
	rules, err := probe.RulesFromConfig(cfg.AuthPhrases, cfg.AuthRulesFile)
	if err != nil {
		return nil, fmt.Errorf("load auth rules: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := refresh.NewMetrics(promReg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	var out sink.Sink = sink.NewHTTPSink(cfg.CollectorBaseURL(), cfg.SinkTimeout)
	var journal *db.Journal
	if cfg.JournalDBPath != "" {
		database, err := db.InitDB(cfg.JournalDBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		journal = db.NewJournal(database)
		// The journal mirrors what the collector receives; the collector stays first.
		out = sink.Multi{out, journal}
		log.Printf("📒 Journal enabled at %s", cfg.JournalDBPath)
	}

	registry := accounts.NewRegistry(cfg.ConfigPath, cfg.AccountsDir)
	balances := fireworks.NewBalanceCache(cfg.FirectlBin, cfg.HTTPTimeout, cfg.FireworksBalanceTTL, nil)
	probes := map[accounts.Provider]probe.Probe{
		accounts.ProviderCodex: codex.NewProvider(cfg.AccountsDir,
			codex.ProcessDialer(cfg.CodexBin, cfg.RPCKillGrace), cfg.RPCTimeout),
		accounts.ProviderAnthropic: anthropic.NewProvider(cfg.AccountsDir, anthropic.Options{
			APIURL:       cfg.AnthropicAPIURL,
			Version:      cfg.AnthropicVersion,
			DefaultModel: cfg.AnthropicModelDefault,
			Timeout:      cfg.HTTPTimeout,
		}),
		accounts.ProviderFireworks: fireworks.NewProvider(cfg.AccountsDir, cfg.FireworksBaseURLDefault,
			cfg.HTTPTimeout, balances),
	}

	coordinator := refresh.New(refresh.Options{
		Registry:    registry,
		Probes:      probes,
		Rules:       rules,
		Sink:        out,
		Metrics:     metrics,
		JoinTimeout: cfg.RefreshJoinTimeout,
	})
	registry.SetBusyCheck(coordinator.Guard().Running)

	return &app{
		cfg:         cfg,
		registry:    registry,
		coordinator: coordinator,
		journal:     journal,
		metrics:     promReg,
	}, nil
}
