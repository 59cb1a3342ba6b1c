package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixperk/tslock/pkg/gateway"
	"github.com/pixperk/tslock/pkg/lock"
	"github.com/pixperk/tslock/pkg/server"
	"github.com/pixperk/tslock/pkg/slots"
	tstime "github.com/pixperk/tslock/pkg/time"
	"github.com/spf13/cobra"
)

var (
	flagHTTPAddr string
	flagGRPCAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Own the lease table and expose its state over HTTP and gRPC health",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagHTTPAddr, "http-addr", "", "HTTP gateway address (env TSLOCK_HTTP_ADDR)")
	serveCmd.Flags().StringVar(&flagGRPCAddr, "grpc-addr", "", "gRPC health address (env TSLOCK_GRPC_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("http-addr") {
		cfg.HTTPAddr = flagHTTPAddr
	}
	if cmd.Flags().Changed("grpc-addr") {
		cfg.GRPCAddr = flagGRPCAddr
	}

	logger.Info().
		Str("slot_file", cfg.SlotFile).
		Int("slots", cfg.Slots).
		Str("http", cfg.HTTPAddr).
		Str("grpc", cfg.GRPCAddr).
		Msg("starting tslock daemon")

	table, err := slots.Open(cfg.SlotFile, cfg.Slots, lock.WithLogger(logger))
	if err != nil {
		return err
	}
	defer table.Close()

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	grpcServer := server.NewServer(table, logger)
	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			logger.Error().Err(err).Msg("grpc server failed")
		}
	}()

	gwServer := gateway.NewServer(cfg.HTTPAddr, table, tstime.NewWallClock(), logger)
	go func() {
		if err := gwServer.Start(context.Background()); err != nil {
			logger.Error().Err(err).Msg("http gateway failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	logger.Info().Msg("tslock is ready")

	<-sigCh
	logger.Info().Msg("shutting down gracefully")

	grpcServer.Drain()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gwServer.Stop(ctx); err != nil {
		logger.Warn().Err(err).Msg("http gateway shutdown")
	}
	grpcServer.Stop()

	logger.Info().Msg("shutdown complete")
	return nil
}
