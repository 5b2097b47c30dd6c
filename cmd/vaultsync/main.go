// Command vaultsync drives the Obsidian vault <-> Feishu document sync
// described by SPEC_FULL: a bare invocation runs every enabled task in
// sync_config.json, `sync` runs a single local/cloud pairing, `login`
// performs the OAuth dance, and `restore`/`clean` manage the backup
// snapshots internal/docsync leaves behind.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cedarlabs/vaultsync/internal/auth"
	"github.com/cedarlabs/vaultsync/internal/backup"
	"github.com/cedarlabs/vaultsync/internal/config"
	"github.com/cedarlabs/vaultsync/internal/docsync"
	"github.com/cedarlabs/vaultsync/internal/gateway"
	"github.com/cedarlabs/vaultsync/internal/metrics"
	"github.com/cedarlabs/vaultsync/internal/orchestrator"
	"github.com/cedarlabs/vaultsync/internal/resourceindex"
	"github.com/cedarlabs/vaultsync/internal/statuslog"
	"github.com/cedarlabs/vaultsync/internal/syncstate"
)

var configPath string
var debug bool

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaultsync",
		Short: "Bidirectional sync between an Obsidian vault and Feishu docs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "sync_config.json", "path to sync_config.json")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")

	cmd.AddCommand(syncCmd())
	cmd.AddCommand(loginCmd())
	cmd.AddCommand(restoreCmd())
	cmd.AddCommand(cleanCmd())
	return cmd
}

func buildClient(cfg *config.Config) (*gateway.Client, *auth.Authenticator, *metrics.Registry, error) {
	authn := auth.New(cfg, configPath)
	reg := metrics.New(prometheus.DefaultRegisterer)
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "resolve home directory")
	}
	cachePath := filepath.Join(home, ".doc_sync", "assets_cache.json")
	client, err := gateway.New(gateway.NewHTTPTransport(), authn, cachePath, reg)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "build gateway client")
	}
	return client, authn, reg, nil
}

func runBatch(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	client, _, reg, err := buildClient(&cfg)
	if err != nil {
		return err
	}
	log := statuslog.New(os.Stdout, debug)
	log.Header("Batch Sync")

	var created, updated, deletedCloud, failed int
	for _, task := range cfg.Tasks {
		if !task.IsEnabled() {
			continue
		}
		log.Rule(task.Note)
		stats, err := runOneTask(ctx, client, reg, cfg, task)
		if err != nil {
			log.Error("task failed: "+task.Note, err)
			failed++
			continue
		}
		created += stats.Created
		updated += stats.Updated
		deletedCloud += stats.DeletedCloud
		failed += stats.Failed
	}

	log.SummaryTable([]statuslog.SummaryRow{
		{Label: "created", Count: created},
		{Label: "updated", Count: updated},
		{Label: "deleted_cloud", Count: deletedCloud},
		{Label: "failed", Count: failed},
	})
	return nil
}

func runOneTask(ctx context.Context, client *gateway.Client, reg *metrics.Registry, cfg config.Config, task config.Task) (orchestrator.Stats, error) {
	vaultRoot := task.VaultRoot
	if vaultRoot == "" {
		vaultRoot = task.Local
	}
	state, err := syncstate.Open(vaultRoot)
	if err != nil {
		return orchestrator.Stats{}, err
	}
	resolver, err := resourceindex.Build(vaultRoot, nil)
	if err != nil {
		return orchestrator.Stats{}, err
	}

	o := &orchestrator.Orchestrator{
		LocalRoot:      task.Local,
		CloudRootToken: task.Cloud,
		Force:          task.Force,
		Overwrite:      task.Overwrite,
		VaultRoot:      vaultRoot,
		Debug:          debug,
		BatchID:        time.Now().Format("20060102_150405"),
		MaxWorkers:     maxWorkers(cfg, task),
		Client:         client,
		State:          state,
		Config:         cfg,
		Resolver:       resolver,
		Metrics:        reg,
	}
	return o.Run(ctx)
}

// maxWorkers resolves MAX_PARALLEL_WORKERS (spec §4.8/§5): a
// per-task override takes precedence over the config-wide default,
// which in turn takes precedence over orchestrator.DefaultMaxWorkers.
func maxWorkers(cfg config.Config, task config.Task) int {
	if task.MaxParallelWorkers > 0 {
		return task.MaxParallelWorkers
	}
	return cfg.MaxParallelWorkers
}

func syncCmd() *cobra.Command {
	var force, overwrite, debugDump bool
	var vaultRoot string
	var workers int

	cmd := &cobra.Command{
		Use:   "sync LOCAL CLOUD_FOLDER_TOKEN",
		Short: "Sync one local folder/file against one remote folder/document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, cloud := args[0], args[1]
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			client, _, reg, err := buildClient(&cfg)
			if err != nil {
				return err
			}

			if debugDump {
				out, err := docsync.DumpRemoteTree(cmd.Context(), client, cloud)
				if err != nil {
					return err
				}
				fmt.Print(out)
				return nil
			}

			if vaultRoot == "" {
				vaultRoot = local
			}
			stats, err := runOneTask(cmd.Context(), client, reg, cfg, config.Task{
				Note: "sync", Local: local, Cloud: cloud, VaultRoot: vaultRoot,
				Force: force, Overwrite: overwrite, MaxParallelWorkers: workers,
			})
			if err != nil {
				return err
			}

			log := statuslog.New(os.Stdout, debug)
			log.SummaryTable([]statuslog.SummaryRow{
				{Label: "created", Count: stats.Created},
				{Label: "updated", Count: stats.Updated},
				{Label: "deleted_cloud", Count: stats.DeletedCloud},
				{Label: "failed", Count: stats.Failed},
			})
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "always push local over remote, skipping the mtime check")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "clear the remote document before re-adding blocks")
	cmd.Flags().StringVar(&vaultRoot, "vault-root", "", "Obsidian vault root (defaults to LOCAL)")
	cmd.Flags().BoolVar(&debugDump, "debug-dump", false, "print CLOUD_FOLDER_TOKEN's remote block tree and exit")
	cmd.Flags().IntVar(&workers, "max-workers", 0, "size of the sync worker pool (0 = orchestrator default)")
	return cmd
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Feishu via the browser OAuth flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			authn := auth.New(&cfg, configPath)
			state := auth.NewState()

			fmt.Println("Open this URL to log in:")
			fmt.Println(authn.AuthURL(state))

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			tok, err := authn.Login(ctx, state)
			if err != nil {
				return errors.Wrap(err, "login")
			}
			fmt.Println("Login successful, token saved to", configPath)
			_ = tok
			return nil
		},
	}
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [path]",
		Short: "Interactively browse and restore .bak.* snapshots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) == 1 {
				target = args[0]
			}
			return runInteractiveRestore(target)
		},
	}
}

func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Delete every .bak.* snapshot under path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) == 1 {
				target = args[0]
			}
			removed, err := backup.Clean(target)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d backup file(s)\n", removed)
			return nil
		},
	}
}

func runInteractiveRestore(target string) error {
	if _, err := os.Stat(target); err != nil {
		return errors.Wrapf(err, "restore target %s", target)
	}

	batches, err := backup.Scan(target)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("No backup snapshots found.")
		return nil
	}
	sorted := backup.Sorted(batches)
	printBatchLog(sorted)

	fmt.Println("Enter a batch number to restore, 'show N', 'diff N', 'log', or 'q' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n>>> ")
		if !scanner.Scan() {
			return nil
		}
		choice := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if choice == "" {
			continue
		}
		if choice == "q" || choice == "quit" || choice == "exit" {
			return nil
		}
		if choice == "log" {
			printBatchLog(sorted)
			continue
		}

		parts := strings.Fields(choice)
		switch {
		case len(parts) == 1:
			idx, err := strconv.Atoi(parts[0])
			if err != nil || idx < 1 || idx > len(sorted) {
				fmt.Println("invalid batch number")
				continue
			}
			return confirmAndRestore(sorted[idx-1])

		case len(parts) == 2 && parts[0] == "show":
			idx, err := strconv.Atoi(parts[1])
			if err != nil || idx < 1 || idx > len(sorted) {
				fmt.Println("invalid batch number")
				continue
			}
			printBatchDetail(sorted[idx-1])

		case len(parts) == 2 && parts[0] == "diff":
			idx, err := strconv.Atoi(parts[1])
			if err != nil || idx < 1 || idx > len(sorted) {
				fmt.Println("invalid batch number")
				continue
			}
			printBatchDiff(sorted[idx-1])

		default:
			fmt.Println("unrecognized command")
		}
	}
}

func printBatchLog(batches []*backup.Batch) {
	fmt.Printf("\nFound %d backup version(s)\n\n", len(batches))
	for i, b := range batches {
		fmt.Printf("[%d] batch %s\n", i+1, b.ID)
		fmt.Printf("    Date:  %s\n", b.Time.Format("2006-01-02 15:04:05"))
		fmt.Printf("    Files: %d\n", len(b.Files))
		for j, f := range b.Files {
			if j >= 3 {
				fmt.Printf("           ... %d more\n", len(b.Files)-3)
				break
			}
			fmt.Printf("           - %s (%.1f KB)\n", f.RelPath, float64(f.Size)/1024)
		}
		fmt.Println()
	}
}

func printBatchDetail(b *backup.Batch) {
	fmt.Printf("\nBatch %s\n", b.ID)
	fmt.Printf("Time: %s\n", b.Time.Format("2006-01-02 15:04:05"))
	for _, f := range b.Files {
		fmt.Printf("  %s (%.1f KB)\n", f.RelPath, float64(f.Size)/1024)
		fmt.Printf("    backup:   %s\n", f.BackupPath)
		fmt.Printf("    original: %s\n", f.OriginalPath)
	}
}

func printBatchDiff(b *backup.Batch) {
	if len(b.Files) == 0 {
		return
	}
	f := b.Files[0]
	out, err := backup.UnifiedDiff(f)
	if err != nil {
		fmt.Println("diff failed:", err)
		return
	}
	if out == "" {
		fmt.Println("No differences.")
		return
	}
	fmt.Print(out)
}

func confirmAndRestore(b *backup.Batch) error {
	fmt.Printf("\nRestoring batch %s (%d files). This overwrites the current files. Continue? (y/n): ", b.ID, len(b.Files))
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return nil
	}
	if strings.TrimSpace(strings.ToLower(scanner.Text())) != "y" {
		fmt.Println("cancelled")
		return nil
	}
	succeeded, failures := backup.Restore(b)
	for _, err := range failures {
		fmt.Println("error:", err)
	}
	fmt.Printf("Restored %d/%d files\n", succeeded, len(b.Files))
	return nil
}
