package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	rlinfra "proxy-gateway/middleware/ratelimit/infra"

	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile     string
	statsPoints int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Reverse-proxy gateway with dynamic routes, rate limiting and failover",
		Long: `gateway encaminha requisições HTTP para um upstream padrão (com fallback),
ou para alvos registrados dinamicamente em GET /proxy.

Toda a configuração vem de variáveis de ambiente (UPSTREAM_URL, RATE_LIMIT, ...)
ou de um arquivo passado em --config.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the gateway (default)",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE:  runConfig,
	})
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print admission stats persisted in Redis",
		RunE:  runStats,
	}
	stats.Flags().IntVar(&statsPoints, "points", 10, "number of series buckets to show")
	root.AddCommand(stats)
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := newViper()
	cfg, err := loadConfig(v, cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	level := parseLevel(cfg.LogLevel)
	logger, err := newLogger(cfg.LogFormat, level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if cfgFile != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			next := v.GetString("log_level")
			lvl := parseLevel(next)
			level.SetLevel(lvl.Level())
			logger.Info("config file changed", zap.String("file", e.Name), zap.String("log_level", lvl.Level().String()))
		})
		v.WatchConfig()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return serve(ctx, cfg, logger)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	v := newViper()
	cfg, err := loadConfig(v, cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), renderConfig(v, cfg))
	return err
}

func runStats(cmd *cobra.Command, _ []string) error {
	v := newViper()
	cfg, err := loadConfig(v, cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if !cfg.RateStatsEnabled {
		return errors.New("stats are only persisted with RATE_STATS_ENABLED=true")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	store := rlinfra.NewRedisStatsStore(rdb,
		rlinfra.WithStatsPrefix(cfg.RateStatsPrefix),
		rlinfra.WithStatsBucket(cfg.RateStatsBucket))
	snap, err := store.Snapshot(ctx, time.Now(), statsPoints)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), renderStats(snap))
	return err
}

// renderStats mostra totais, motivos e a série recente numa tabela só.
func renderStats(snap rlinfra.StatsSnapshot) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Section", "Name", "Allowed", "Denied"})
	t.AppendRow(table.Row{"total", "", snap.Total.Allowed, snap.Total.Denied})
	t.AppendSeparator()
	for _, reason := range snap.Reasons() {
		t.AppendRow(table.Row{"reason", reason, "", snap.ByReason[reason]})
	}
	if len(snap.Series) > 0 {
		t.AppendSeparator()
		for _, p := range snap.Series {
			t.AppendRow(table.Row{"series", p.Stamp, p.Allowed, p.Denied})
		}
	}
	return t.Render()
}

// renderConfig monta a tabela chave/valor/origem; segredos aparecem mascarados.
func renderConfig(v *viper.Viper, cfg config) string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Value", "Source"})
	for _, k := range keys {
		val := fmt.Sprint(v.Get(k))
		if k == "redis_password" && val != "" {
			val = "********"
		}
		t.AppendRow(table.Row{k, val, source(v, k)})
	}
	t.AppendFooter(table.Row{"", "upstream", cfg.UpstreamURL})
	return t.Render()
}

func source(v *viper.Viper, key string) string {
	if _, ok := os.LookupEnv(strings.ToUpper(key)); ok {
		return "env"
	}
	if v.InConfig(key) {
		return "file"
	}
	return "default"
}
