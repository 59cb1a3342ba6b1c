package main

import (
	"fmt"

	"github.com/pixperk/tslock/pkg/lock"
	"github.com/pixperk/tslock/pkg/slots"
	"github.com/pixperk/tslock/pkg/stress"
	"github.com/spf13/cobra"
)

var stressCfg = stress.DefaultConfig()

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Hammer one in-process lock word and verify no increment is lost",
	RunE:  runStress,
}

func init() {
	f := stressCmd.Flags()
	f.IntVar(&stressCfg.Workers, "workers", stress.DefaultWorkers, "concurrent workers")
	f.IntVar(&stressCfg.Iterations, "iterations", stress.DefaultIterations, "cycles per worker")
	f.DurationVar(&stressCfg.Timeout, "timeout", stress.DefaultTimeout, "lease timeout per acquire")
	f.IntVar(&stressCfg.AbandonEvery, "abandon-every", 0, "skip the release every Nth cycle to simulate crashes")
	rootCmd.AddCommand(stressCmd)
}

func runStress(cmd *cobra.Command, _ []string) error {
	table, err := slots.NewAnonymous(1, lock.WithLogger(logger))
	if err != nil {
		return err
	}
	defer table.Close()

	l, err := table.Lock(0, lock.WithName("stress"))
	if err != nil {
		return err
	}

	stressCfg.Logger = logger
	res, err := stress.Run(cmd.Context(), l, stressCfg)
	fmt.Printf("counter=%d\nexpected=%d\ncrashes=%d\nelapsed=%s\n", res.Counter, res.Expected, res.Crashes, res.Elapsed)
	return err
}
