package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind             string
	graceWindow      time.Duration
	idleTimeout      time.Duration
	maxRooms         int
	minPlayers       int
	packTimeout      time.Duration
	port             int
	predictionPoints int
	prefix           string
	profile          bool
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minPlayers < 2 {
		return fmt.Errorf("invalid minimum player count (must be at least 2): %d", c.minPlayers)
	}
	if c.predictionPoints < 1 {
		return fmt.Errorf("invalid prediction point value (must be positive): %d", c.predictionPoints)
	}
	if c.maxRooms < 1 {
		return fmt.Errorf("invalid room limit (must be positive): %d", c.maxRooms)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WHOSMOST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "whos-most",
		Short:         "Real-time game rooms for Who's Most Likely To, played from personal devices.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WHOSMOST_BIND)")
	fs.DurationVar(&cfg.graceWindow, "grace-window", 5*time.Minute, "extra idle time granted to mid-round rooms awaiting an organizer reconnect (env: WHOSMOST_GRACE_WINDOW)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 30*time.Minute, "time before rooms with no connections are destroyed (env: WHOSMOST_IDLE_TIMEOUT)")
	fs.IntVar(&cfg.maxRooms, "max-rooms", 50, "maximum number of concurrently live rooms (env: WHOSMOST_MAX_ROOMS)")
	fs.IntVar(&cfg.minPlayers, "min-players", 3, "minimum player count required to start a game (env: WHOSMOST_MIN_PLAYERS)")
	fs.DurationVar(&cfg.packTimeout, "pack-timeout", time.Hour, "time before unused prompt packs are discarded (env: WHOSMOST_PACK_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WHOSMOST_PORT)")
	fs.IntVar(&cfg.predictionPoints, "prediction-points", 100, "bonus points for voting with the majority (env: WHOSMOST_PREDICTION_POINTS)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WHOSMOST_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WHOSMOST_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WHOSMOST_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WHOSMOST_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WHOSMOST_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WHOSMOST_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("whos-most v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
