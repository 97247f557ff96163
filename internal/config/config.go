// Package config loads the process-wide configuration keys from an
// ini-style file, the way the teacher's own config layer is built on
// github.com/Unknwon/goconfig, with environment variables layered on top
// of file values.
package config

import (
	"os"

	"github.com/Unknwon/goconfig"
)

// Config holds the eight process-wide keys from the wire spec. Missing
// address keys simply disable that listener.
type Config struct {
	TCPAddress    string
	TCPTLSAddress string
	QUICAddress   string
	LogLevel      string
	CAChainFile   string
	CertFile      string
	KeyFile       string
	DatabaseURL   string
}

// Load reads path (an ini file with keys in the DEFAULT section) and
// applies VFTPD_* environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		file, err := goconfig.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg.TCPAddress = file.MustValue(goconfig.DEFAULT_SECTION, "tcp_address", "")
		cfg.TCPTLSAddress = file.MustValue(goconfig.DEFAULT_SECTION, "tcp_tls_address", "")
		cfg.QUICAddress = file.MustValue(goconfig.DEFAULT_SECTION, "quic_address", "")
		cfg.LogLevel = file.MustValue(goconfig.DEFAULT_SECTION, "log_level", "info")
		cfg.CAChainFile = file.MustValue(goconfig.DEFAULT_SECTION, "ca_chain_file", "")
		cfg.CertFile = file.MustValue(goconfig.DEFAULT_SECTION, "cert_file", "")
		cfg.KeyFile = file.MustValue(goconfig.DEFAULT_SECTION, "key_file", "")
		cfg.DatabaseURL = file.MustValue(goconfig.DEFAULT_SECTION, "database_url", "")
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrideString(&cfg.TCPAddress, "VFTPD_TCP_ADDRESS")
	overrideString(&cfg.TCPTLSAddress, "VFTPD_TCP_TLS_ADDRESS")
	overrideString(&cfg.QUICAddress, "VFTPD_QUIC_ADDRESS")
	overrideString(&cfg.LogLevel, "VFTPD_LOG_LEVEL")
	overrideString(&cfg.CAChainFile, "VFTPD_CA_CHAIN_FILE")
	overrideString(&cfg.CertFile, "VFTPD_CERT_FILE")
	overrideString(&cfg.KeyFile, "VFTPD_KEY_FILE")
	overrideString(&cfg.DatabaseURL, "VFTPD_DATABASE_URL")
}

func overrideString(target *string, envKey string) {
	if v, ok := os.LookupEnv(envKey); ok {
		*target = v
	}
}

// TLSConfigured reports whether enough material is present to offer TLS
// (AUTH TLS, and the TCP+TLS listener).
func (c *Config) TLSConfigured() bool {
	return c.CertFile != "" && c.KeyFile != ""
}
