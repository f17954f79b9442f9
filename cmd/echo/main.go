// Package main provides the echo CLI entry point: a thin operational
// front end over pkg/engine, pkg/intent, pkg/history, pkg/ledgerstore, and
// pkg/inspect. It carries no rewrite rules of its own — registering rule
// matchers is left to whatever embeds this engine as a library — so
// "echo tick" against an empty registry commits empty ticks. Its purpose
// is exercising the ingest/tick/replay/hash-key operational surface, not
// modeling any particular domain's rules.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/flyingrobots/echo/pkg/config"
	"github.com/flyingrobots/echo/pkg/engine"
	"github.com/flyingrobots/echo/pkg/hashing"
	"github.com/flyingrobots/echo/pkg/history"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/inspect"
	"github.com/flyingrobots/echo/pkg/ledgerstore"
	"github.com/flyingrobots/echo/pkg/telemetry"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "echo",
		Short: "Echo - a deterministic graph-rewrite execution engine",
		Long: `Echo drives a content-addressed graph through deterministic
rewrite ticks: intents go in, a tick drains and schedules matching
rewrites, executes them in parallel, merges the result, and commits a
canonically hashed patch to an append-only per-warp ledger.

This CLI exercises that operational surface (ingest, tick, replay,
hash-key): ingest and tick each run against a fresh process-local engine
instance, and replay reads a durable ledgerstore directory. It registers no rewrite rules itself; a host process
embedding pkg/engine supplies its own engine.Registry.`,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newIngestCmd())
	root.AddCommand(newTickCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newHashKeyCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("echo v%s (%s)\n", version, commit)
		},
	}
}

// warpFlag parses a --warp value, accepting either 64 hex characters (a
// literal WarpId) or any other string, which is hashed into a WarpId so
// operators can refer to warps by name.
func warpFlag(raw string) ids.WarpId {
	if len(raw) == 2*ids.Size {
		if b, err := hex.DecodeString(raw); err == nil {
			return ids.FromBytes(b)
		}
	}
	return hashing.Sum("WARP", []byte(raw))
}

// newTelemetry builds a process-local telemetry.Recorder from a bare
// SDK tracer provider and meter provider. Neither is wired to an exporter
// here — a host process embedding this engine as a library configures its
// own exporters and passes its own engine.Telemetry in instead; this CLI
// only needs the counters and spans to exist so the tick pipeline has
// somewhere to report to.
func newTelemetry() (*telemetry.Recorder, error) {
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	return telemetry.New(tp.Tracer("echo"), mp.Meter("echo"), logr.Discard())
}

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newIngestCmd() *cobra.Command {
	var warpName string
	cmd := &cobra.Command{
		Use:   "ingest <intent-file>",
		Short: "Ingest one intent envelope from a file into the intent log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rec, err := newTelemetry()
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			eng := engine.New(cfg.ToEngine(), engine.NewRegistry(), rec)

			ack, err := eng.Intents().IngestIntent(raw)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			fmt.Printf("warp=%s seq=%d intent_id=%s status=%s bytes=%s\n",
				warpFlag(warpName).String(), ack.Seq, ack.IntentID.String(), ack.Status.String(),
				humanize.Bytes(uint64(len(raw))))
			return nil
		},
	}
	cmd.Flags().StringVar(&warpName, "warp", "default", "warp name or 64-hex WarpId")
	return cmd
}

func newTickCmd() *cobra.Command {
	var warpName string
	var drainMax int
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one deterministic tick against the configured rule registry",
		Long: `Opens a transaction, drains pending intents against the
configured rule registry (empty, in this CLI), reserves footprints,
executes, merges, commits, and appends the resulting HistoryEntry to the
in-process ledger for the named warp. Useful for exercising the pipeline
end to end; a real deployment registers its own rule matchers via
engine.Registry and calls this sequence from its own process instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			warpID := warpFlag(warpName)
			rec, err := newTelemetry()
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			eng := engine.New(cfg.ToEngine(), engine.NewRegistry(), rec)

			txID := eng.BeginTx()
			eng.DrainIntents(txID, warpID, drainMax)
			result, err := eng.Commit(txID, warpID)
			if err != nil {
				return fmt.Errorf("commit: %w", err)
			}

			printEntry(result.Entry)
			return nil
		},
	}
	cmd.Flags().StringVar(&warpName, "warp", "default", "warp name or 64-hex WarpId")
	cmd.Flags().IntVar(&drainMax, "drain-max", 0, "maximum intents to drain this tick (0 = unbounded)")
	return cmd
}

func printEntry(e history.Entry) {
	fmt.Printf("tick=%d commit_hash=%s state_root=%s patch_digest=%s applied=%d rejected=%d\n",
		e.Tick, e.Snapshot.CommitHash.String(), e.Snapshot.StateRoot.String(), e.Snapshot.PatchDigest.String(),
		len(e.Receipt.Applied), len(e.Receipt.Rejected))
}

func newReplayCmd() *cobra.Command {
	var warpName string
	var ledgerDir string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a warp's durable ledger and verify every recorded tick decodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ledgerstore.Open(ledgerstore.Options{Dir: ledgerDir})
			if err != nil {
				return fmt.Errorf("opening ledgerstore: %w", err)
			}
			defer store.Close()

			warpID := warpFlag(warpName)
			n, err := store.Len(warpID)
			if err != nil {
				return fmt.Errorf("reading ledger length: %w", err)
			}
			if n == 0 {
				fmt.Println("no entries recorded for this warp")
				return nil
			}

			for tick := uint64(0); tick < n; tick++ {
				if _, err := store.Get(warpID, tick); err != nil {
					return fmt.Errorf("tick %d: %w", tick, err)
				}
			}
			fmt.Printf("replayed %s ticks for warp=%s, all patches decoded cleanly\n", humanize.Comma(int64(n)), warpID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&warpName, "warp", "default", "warp name or 64-hex WarpId")
	cmd.Flags().StringVar(&ledgerDir, "ledger-dir", "./data/ledger", "ledgerstore data directory")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "hash-key",
		Short: "Hash an API key for ECHO_INSPECT_API_KEY_HASH",
		Long: `The Inspection API (pkg/inspect) is embedded by a host
process, not served directly by this CLI. This subcommand only produces
the bcrypt hash an operator configures via ECHO_INSPECT_API_KEY_HASH or a
policy file's inspect.api_key_hash.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := inspect.HashAPIKey(apiKey)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "key", "", "API key to hash")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
