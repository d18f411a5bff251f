package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"pacer-gateway/internal/config"
	"pacer-gateway/internal/logger"
	"pacer-gateway/middleware/ratelimit"
)

// app guarda o estado compartilhado entre os subcomandos.
type app struct {
	configPath string
	localFlags []localFlag

	cfg    *config.Config
	log    *slog.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "pacer",
		Short: "Distributed fixed-window rate limiting backed by Redis",
		Long: `pacer grants or denies tokens to identified consumers inside a fixed
window. The counter lives in Redis so every process shares one limit.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "config file (default: ./pacer.yaml or ./configs/pacer.yaml if present)")
	f.String("redis-host", "localhost", "redis host")
	f.Int("redis-port", 6379, "redis port")
	f.Int("redis-db", 0, "redis logical database index")
	f.Int("default-limit", 100, "tokens per window when the consumer does not override it")
	f.Int("default-reset", 3600, "window length in seconds when the consumer does not override it")
	f.Bool("allow-on-error", true, "grant access when redis fails (fail-open)")
	f.String("log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		newConsumeCmd(a),
		newQueryCmd(a),
		newGatewayCmd(a),
		newServeCmd(a),
	)

	return root
}

var flagBindings = map[string]string{
	"redis-host":     "redis.host",
	"redis-port":     "redis.port",
	"redis-db":       "redis.db",
	"default-limit":  "quota.limit",
	"default-reset":  "quota.reset",
	"allow-on-error": "quota.allow_on_error",
	"log-level":      "logger.level",
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := config.New(a.configPath)
	if err != nil {
		return err
	}
	for flag, key := range flagBindings {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	for _, lf := range a.localFlags {
		if lf.cmd != cmd {
			continue
		}
		if err := v.BindPFlag(lf.key, cmd.Flags().Lookup(lf.flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", lf.flag, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log, closer, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(log)

	a.cfg, a.log, a.closer = cfg, log, closer
	return nil
}

func (a *app) pacerOptions() ratelimit.Options {
	q := a.cfg.Quota
	return ratelimit.Options{
		AllowOnError:   ratelimit.Bool(q.AllowOnError),
		RedisHost:      a.cfg.Redis.Host,
		RedisPort:      a.cfg.Redis.Port,
		RedisIndex:     a.cfg.Redis.DB,
		RedisPassword:  a.cfg.Redis.Password,
		Limit:          q.Limit,
		Reset:          q.Reset,
		KeyPrefix:      q.KeyPrefix,
		CommandTimeout: q.CommandTimeout,
		MaxInFlight:    q.MaxInFlight,
		AcquireTimeout: q.AcquireTimeout,
		Logger:         a.log,
	}
}

// bindLocal liga uma flag local do subcomando a uma chave do viper.
// O viper ainda não existe aqui; a ligação é feita em load.
// Flag inexistente é erro de programação e gera panic.
func (a *app) bindLocal(cmd *cobra.Command, flag, key string) {
	if cmd.Flags().Lookup(flag) == nil {
		panic(fmt.Sprintf("pacer: bindLocal: command %q has no flag %q", cmd.Name(), flag))
	}
	a.localFlags = append(a.localFlags, localFlag{cmd: cmd, flag: flag, key: key})
}

type localFlag struct {
	cmd  *cobra.Command
	flag string
	key  string
}
