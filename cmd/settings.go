package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings are the runtime options of a command. Precedence: flag, HOIST_* environment variable,
// settings file, flag default.
type Settings struct {
	Config   string        `mapstructure:"config"`   // line configuration; empty selects the embedded default line
	Plan     string        `mapstructure:"plan"`     // optional advisory plan
	Log      string        `mapstructure:"log"`      // logrus level
	Horizon  float64       `mapstructure:"horizon"`  // overrides termination.horizon when positive
	Trace    string        `mapstructure:"trace"`    // overrides the trace level when set
	Addr     string        `mapstructure:"addr"`     // serve: listen address
	Interval time.Duration `mapstructure:"interval"` // serve: wall time between replayed snapshots
	Loop     bool          `mapstructure:"loop"`     // serve: replay the timeline forever
}

// addLineFlags registers the flags every command shares.
func addLineFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Line configuration file (YAML); defaults to the built-in three-bath line")
	fs.String("plan", "", "Advisory plan file (YAML)")
	fs.String("log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	fs.Float64("horizon", 0, "Virtual-time horizon in time units; 0 keeps the configured or derived bound")
	fs.String("trace", "", "Schedule trace level (none, transfers); empty keeps the configured level")
	fs.String("settings", "", "Optional settings file (YAML) with values for any of these flags")
}

// addServeFlags registers the flags of the serve command.
func addServeFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8080", "Listen address for the WebSocket feed and metrics")
	fs.Duration("interval", 100*time.Millisecond, "Wall time between replayed snapshots")
	fs.Bool("loop", false, "Replay the timeline repeatedly until interrupted")
}

// loadSettings resolves the command's settings through viper.
func loadSettings(cmd *cobra.Command) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("HOIST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	if file := v.GetString("settings"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading settings file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return &s, nil
}
