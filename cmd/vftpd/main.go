// Command vftpd runs the file-transfer server: it loads configuration,
// wires the authentication backend and TLS material, and serves the
// enabled transports until SIGINT.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/riverrun/vftpd/internal/auth"
	"github.com/riverrun/vftpd/internal/auth/sqlauth"
	"github.com/riverrun/vftpd/internal/config"
	"github.com/riverrun/vftpd/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string

	flagTCPAddress    string
	flagTCPTLSAddress string
	flagQUICAddress   string
	flagLogLevel      string
	flagCAChainFile   string
	flagCertFile      string
	flagKeyFile       string
	flagDatabaseURL   string
)

// commandDefinition is the root cobra.Command, in the same
// package-level-var shape the teacher uses for each cmd/<name> subcommand.
var commandDefinition = &cobra.Command{
	Use:   "vftpd",
	Short: "Serve a virtual-filesystem FTP-family server over TCP, TCP+TLS and QUIC",
	RunE:  run,
}

func init() {
	flags := commandDefinition.Flags()
	flags.StringVar(&configPath, "config", "", "path to an ini-style config file")
	flags.StringVar(&flagTCPAddress, "tcp-address", "", "address to serve plain TCP control connections on")
	flags.StringVar(&flagTCPTLSAddress, "tcp-tls-address", "", "address to serve implicit TCP+TLS control connections on")
	flags.StringVar(&flagQUICAddress, "quic-address", "", "address to serve QUIC control connections on")
	flags.StringVar(&flagLogLevel, "log-level", "", "logrus level (panic, fatal, error, warn, info, debug, trace)")
	flags.StringVar(&flagCAChainFile, "ca-chain-file", "", "PEM file of CA certificates trusted for client authentication")
	flags.StringVar(&flagCertFile, "cert-file", "", "PEM file of the server's TLS certificate chain")
	flags.StringVar(&flagKeyFile, "key-file", "", "PEM file of the server's TLS private key")
	flags.StringVar(&flagDatabaseURL, "database-url", "", "sqlite DSN for the authentication backend")
}

func main() {
	if err := commandDefinition.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cmd.Flags(), cfg)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	log := logrus.WithField("component", "main")

	if cfg.TCPAddress == "" && cfg.TCPTLSAddress == "" && cfg.QUICAddress == "" {
		return fmt.Errorf("no listener configured: set at least one of tcp_address, tcp_tls_address, quic_address")
	}

	authProvider, err := buildAuthProvider(cfg)
	if err != nil {
		return fmt.Errorf("build authentication provider: %w", err)
	}

	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return fmt.Errorf("build TLS config: %w", err)
	}
	if tlsConfig == nil && (cfg.TCPTLSAddress != "" || cfg.QUICAddress != "") {
		return fmt.Errorf("tcp_tls_address/quic_address configured but cert_file/key_file are missing")
	}

	srvCtx := &server.Context{
		Auth:        authProvider,
		TLSConfig:   tlsConfig,
		Timeouts:    server.DefaultTimeouts,
		Log:         log,
		BindIP:      "0.0.0.0",
		AdvertiseIP: "127.0.0.1",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"tcp":     cfg.TCPAddress,
		"tcp_tls": cfg.TCPTLSAddress,
		"quic":    cfg.QUICAddress,
	}).Info("starting server")

	if err := server.Serve(ctx, srvCtx, server.ListenConfig{
		TCPAddress:    cfg.TCPAddress,
		TCPTLSAddress: cfg.TCPTLSAddress,
		QUICAddress:   cfg.QUICAddress,
	}); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	log.Info("shut down cleanly")
	return nil
}

// applyFlagOverrides lets any explicitly-set pflag win over the config
// file's value, the same layering order config.Load already applies for
// environment variables.
func applyFlagOverrides(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("tcp-address") {
		cfg.TCPAddress = flagTCPAddress
	}
	if flags.Changed("tcp-tls-address") {
		cfg.TCPTLSAddress = flagTCPTLSAddress
	}
	if flags.Changed("quic-address") {
		cfg.QUICAddress = flagQUICAddress
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("ca-chain-file") {
		cfg.CAChainFile = flagCAChainFile
	}
	if flags.Changed("cert-file") {
		cfg.CertFile = flagCertFile
	}
	if flags.Changed("key-file") {
		cfg.KeyFile = flagKeyFile
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = flagDatabaseURL
	}
}

func buildAuthProvider(cfg *config.Config) (*auth.Provider, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required")
	}
	source, err := sqlauth.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return auth.NewProvider(source), nil
}

// buildTLSConfig loads the server certificate and, if ca_chain_file is
// set, a client-certificate trust pool. Returns (nil, nil) when no TLS
// material is configured at all, which disables AUTH TLS and the TLS/QUIC
// listeners upstream.
func buildTLSConfig(cfg *config.Config) (*tls.Config, error) {
	if !cfg.TLSConfigured() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"ftp"},
	}
	if cfg.CAChainFile != "" {
		pem, err := os.ReadFile(cfg.CAChainFile)
		if err != nil {
			return nil, fmt.Errorf("read ca_chain_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca_chain_file contains no usable certificates")
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}
	if keylogPath := os.Getenv("SSLKEYLOGFILE"); keylogPath != "" {
		f, err := os.OpenFile(keylogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open SSLKEYLOGFILE: %w", err)
		}
		tlsConfig.KeyLogWriter = f
	}
	return tlsConfig, nil
}
