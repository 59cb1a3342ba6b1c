package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixperk/tslock/pkg/client"
	"github.com/pixperk/tslock/pkg/lock"
	"github.com/pixperk/tslock/pkg/slots"
	"github.com/spf13/cobra"
)

var (
	flagSlot   int
	flagFor    time.Duration
	flagCrash  bool
	flagNoWait bool
)

var holdCmd = &cobra.Command{
	Use:   "hold",
	Short: "Acquire a slot, keep its lease alive for a while, then release it",
	RunE:  runHold,
}

func init() {
	holdCmd.Flags().IntVar(&flagSlot, "slot", 0, "slot index")
	holdCmd.Flags().DurationVar(&flagFor, "for", 30*time.Second, "how long to hold the lease")
	holdCmd.Flags().BoolVar(&flagCrash, "crash", false, "exit without releasing, leaving the lease to expire")
	holdCmd.Flags().BoolVar(&flagNoWait, "no-wait", false, "fail instead of waiting when the slot is held")
	rootCmd.AddCommand(holdCmd)
}

func runHold(_ *cobra.Command, _ []string) error {
	table, err := slots.Open(cfg.SlotFile, cfg.Slots, lock.WithLogger(logger))
	if err != nil {
		return err
	}
	defer table.Close()

	l, err := table.Lock(flagSlot)
	if err != nil {
		return err
	}

	holder := client.NewHolder(l, cfg.LeaseTimeout, logger.With().Int("slot", flagSlot).Logger())
	start := holder.Start
	if flagNoWait {
		start = holder.TryStart
	}
	if err := start(); err != nil {
		return err
	}
	if holder.Crashed() {
		logger.Warn().Msg("previous holder never released; its writes may be incomplete")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-time.After(flagFor):
	case <-sigCh:
		logger.Info().Msg("interrupted")
	case err := <-holder.Lost():
		return fmt.Errorf("slot %d: %w", flagSlot, err)
	}

	if flagCrash {
		ticket := holder.Abandon()
		fmt.Printf("abandoned slot %d, lease expires at %s\n", flagSlot, ticket.ExpiresAt().Format(time.RFC3339))
		return nil
	}
	return holder.Release()
}
