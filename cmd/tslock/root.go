package main

import (
	"os"
	"time"

	"github.com/pixperk/tslock/pkg/config"
	"github.com/pixperk/tslock/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger zerolog.Logger

	flagSlotFile  string
	flagSlots     int
	flagLease     time.Duration
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tslock",
	Short: "Self-expiring locks over shared memory words",
	Long: "tslock manages a table of lease slots in a memory-mapped file. Each slot is a " +
		"64-bit word holding 0 (unlocked) or the unix second its lease expires, so a " +
		"holder that dies blocks others only until its lease runs out.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagSlotFile, "slot-file", "", "lease table file (env TSLOCK_SLOT_FILE)")
	pf.IntVar(&flagSlots, "slots", 0, "number of slots in the table (env TSLOCK_SLOTS)")
	pf.DurationVar(&flagLease, "lease", 0, "lease timeout (env TSLOCK_LEASE_TIMEOUT)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (env TSLOCK_LOG_LEVEL)")
	pf.StringVar(&flagLogFormat, "log-format", "", "console or json (env TSLOCK_LOG_FORMAT)")
}

// loads config, applies flag overrides and builds the logger
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("slot-file") {
		loaded.SlotFile = flagSlotFile
	}
	if flags.Changed("slots") {
		loaded.Slots = flagSlots
	}
	if flags.Changed("lease") {
		loaded.LeaseTimeout = flagLease
	}
	if flags.Changed("log-level") {
		loaded.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		loaded.LogFormat = flagLogFormat
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	logger, err = logging.New(loaded.LogLevel, loaded.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}
