package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmeyer977/ethudp/internal/cipher"
	"github.com/jmeyer977/ethudp/internal/config"
	"github.com/jmeyer977/ethudp/internal/l2"
	"github.com/jmeyer977/ethudp/internal/logging"
	"github.com/jmeyer977/ethudp/internal/monitor"
	"github.com/jmeyer977/ethudp/internal/transport"
	"github.com/jmeyer977/ethudp/internal/tunnel"
)

const version = "1.0.0"

func newRootCommand() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:     "ethudp",
		Short:   "Bridge a local Ethernet source to a remote peer over UDP",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file (required)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "force debug-level logging regardless of the configured level")
	cmd.MarkFlagRequired("config")

	return cmd
}

func run(configPath string, debugFlag bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logging.INFO
	}
	if debugFlag {
		level = logging.DEBUG
	}
	log, err := logging.New("ethudp", level, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Close()

	log.Info("starting ethudp", logging.Fields{"version": version, "mode": string(cfg.Mode)})

	tap, err := openTapEndpoint(cfg)
	if err != nil {
		return fmt.Errorf("open local endpoint: %w", err)
	}
	defer tap.Close()

	c, err := cipher.New(cfg.Cipher, cfg.Key)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}

	masterEndpoint, err := openPathEndpoint(cfg.Master)
	if err != nil {
		return fmt.Errorf("open master path: %w", err)
	}
	defer masterEndpoint.Close()

	var slaveEndpoint *transport.Endpoint
	if cfg.Slave != nil {
		slaveEndpoint, err = openPathEndpoint(*cfg.Slave)
		if err != nil {
			return fmt.Errorf("open slave path: %w", err)
		}
		defer slaveEndpoint.Close()
	}

	t := tunnel.New(cfg, log, tap, c, masterEndpoint, slaveEndpoint)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGUSR1:
				log.Info("operator requested traffic report")
				t.ReportNow()
			default:
				log.Info("shutting down", logging.Fields{"signal": sig.String()})
				cancel()
				return
			}
		}
	}()

	if cfg.Monitor.Enabled {
		mon := monitor.New(cfg.Monitor.Listen, t, log)
		go func() {
			if err := mon.Run(ctx); err != nil {
				log.Warn("monitor server stopped", logging.Fields{"error": err.Error()})
			}
		}()
	}

	return t.Run(ctx)
}

func openTapEndpoint(cfg *config.Config) (l2.Endpoint, error) {
	switch cfg.Mode {
	case config.ModeEthernet:
		return l2.NewRawEndpoint(cfg.Interface, !cfg.NoPromisc)
	case config.ModeTAP:
		tap, err := l2.NewTAPEndpoint(cfg.Interface)
		if err != nil {
			return nil, err
		}
		if cfg.LocalAddress != "" {
			if err := tap.ConfigureAddress(cfg.LocalAddress, cfg.Netmask); err != nil {
				return nil, fmt.Errorf("configure %s: %w", tap.Name(), err)
			}
		}
		return tap, nil
	case config.ModeBridge:
		tap, err := l2.NewTAPEndpoint(cfg.Interface)
		if err != nil {
			return nil, err
		}
		if err := tap.AttachToBridge(cfg.BridgeName); err != nil {
			return nil, fmt.Errorf("attach %s to %s: %w", tap.Name(), cfg.BridgeName, err)
		}
		return tap, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func openPathEndpoint(pc config.PathConfig) (*transport.Endpoint, error) {
	local := &net.UDPAddr{IP: net.ParseIP(pc.LocalIP), Port: pc.LocalPort}
	if local.IP == nil {
		local.IP = net.IPv4zero
	}

	if pc.RemotePort == 0 {
		return transport.New(local, nil) // NAT mode
	}

	remoteIPs, err := net.LookupIP(pc.RemoteIP)
	if err != nil || len(remoteIPs) == 0 {
		return nil, fmt.Errorf("resolve remote address %s: %w", pc.RemoteIP, err)
	}
	remote := &net.UDPAddr{IP: remoteIPs[0], Port: pc.RemotePort}
	return transport.New(local, remote)
}
