package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theonlywayisdigital/donedex-sub002/internal/cache"
	"github.com/theonlywayisdigital/donedex-sub002/internal/config"
	"github.com/theonlywayisdigital/donedex-sub002/internal/logging"
	"github.com/theonlywayisdigital/donedex-sub002/internal/media"
	"github.com/theonlywayisdigital/donedex-sub002/internal/merge"
	"github.com/theonlywayisdigital/donedex-sub002/internal/remote"
	"github.com/theonlywayisdigital/donedex-sub002/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "donedex",
	Short: "Offline-first inspection report sync engine",
	Long: `donedex edits field inspection reports with full offline support.

Edits land in a local SQLite draft cache immediately. Saves sync to the
remote report service when online and queue as mutations when not; the
sync daemon replays the queue as soon as connectivity returns. Loading
a report merges local and remote state field by field.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: donedex.yaml)")
	rootCmd.PersistentFlags().Bool("offline", false, "Force offline mode (skip connectivity probe)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "inspection", Title: "Inspection Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

// env bundles everything a command needs: configuration, the draft
// store, remote clients, and loggers. Close releases the store and the
// log file.
type env struct {
	cfg     *config.Config
	store   *cache.Store
	client  *remote.Client
	conn    remote.Connectivity
	media   remote.MediaStore
	logSink io.Writer

	closers []io.Closer
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

// buildEnv assembles the runtime environment from flags and config.
func buildEnv(cmd *cobra.Command) (*env, error) {
	configPath, _ := cmd.Flags().GetString("config")
	forceOffline, _ := cmd.Flags().GetBool("offline")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	sink, logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	e := &env{cfg: cfg, logSink: sink}
	e.closers = append(e.closers, logCloser)

	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to open draft cache: %w", err)
	}
	e.store = store
	e.closers = append(e.closers, store)

	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	e.client = client

	if forceOffline {
		e.conn = remote.Static(false)
	} else {
		e.conn = remote.NewProber(remote.ProberConfig{Addr: probeAddr(cfg)})
	}

	switch cfg.Media.Backend {
	case "s3":
		s3Store, err := media.NewS3Store(context.Background(), cfg.Media.Bucket, cfg.Media.Region)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to set up S3 media store: %w", err)
		}
		e.media = s3Store
	default:
		fsStore, err := media.NewFilesystemStore(cfg.Media.Dir)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to set up media directory: %w", err)
		}
		e.media = fsStore
	}

	return e, nil
}

// probeAddr derives the connectivity probe target from the API base
// URL unless an explicit probe address is configured.
func probeAddr(cfg *config.Config) string {
	if cfg.API.ProbeAddr != "" {
		return cfg.API.ProbeAddr
	}

	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Host == "" {
		return "localhost:80"
	}

	host := u.Host
	if !strings.Contains(host, ":") {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(host, port)
	}
	return host
}

// newController wires a session controller from the environment.
func (e *env) newController() (*session.Controller, error) {
	return session.NewController(session.Config{
		Store:        e.store,
		Templates:    e.client,
		Reports:      e.client,
		Media:        e.media,
		Connectivity: e.conn,
		Strategy:     merge.Strategy(e.cfg.Sync.ConflictStrategy),
		Logger:       logging.New(e.logSink, "session"),
	})
}
