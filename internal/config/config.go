// Package config loads the server's configuration and provisions the
// TLS material and directory layout a fresh deployment needs.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the full server configuration. It is loaded from either a
// JSON or a YAML file (selected by extension), merged over Default().
type Config struct {
	Port        string `json:"port" yaml:"port"`
	Debug       bool   `json:"debug" yaml:"debug"`
	MaxConns    int    `json:"max_conns" yaml:"max_conns"`
	DataDir     string `json:"data_dir" yaml:"data_dir"`
	ShardCount  int    `json:"shard_count" yaml:"shard_count"`
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
	AdminAddr   string `json:"admin_addr" yaml:"admin_addr"`

	TLSCertFile       string `json:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile        string `json:"tls_key_file" yaml:"tls_key_file"`
	TLSCAFile         string `json:"tls_ca_file" yaml:"tls_ca_file"`
	TLSClientCertFile string `json:"tls_client_cert_file" yaml:"tls_client_cert_file"`
	TLSClientKeyFile  string `json:"tls_client_key_file" yaml:"tls_client_key_file"`

	Role      string `json:"role" yaml:"role"`
	ReplicaOf string `json:"replica_of" yaml:"replica_of"`

	ClusterEnabled bool     `json:"cluster_enabled" yaml:"cluster_enabled"`
	ZKServers      []string `json:"zk_servers" yaml:"zk_servers"`

	// TTL index engine knobs, named after the tunables a shard's
	// background expiration manager exposes.
	ScanCntIndexMgr   int `json:"scan_cnt_index_mgr" yaml:"scan_cnt_index_mgr"`
	ScanJobCntIndexMgr int `json:"scan_job_cnt_index_mgr" yaml:"scan_job_cnt_index_mgr"`
	DelCntIndexMgr    int `json:"del_cnt_index_mgr" yaml:"del_cnt_index_mgr"`
	DelJobCntIndexMgr int `json:"del_job_cnt_index_mgr" yaml:"del_job_cnt_index_mgr"`
	PauseTimeIndexMgrSeconds int `json:"pause_time_index_mgr" yaml:"pause_time_index_mgr"`
}

// Default returns a configuration suitable for a single-node
// development deployment.
func Default() Config {
	return Config{
		Port:                     ":6380",
		MaxConns:                 10000,
		DataDir:                  "data",
		ShardCount:               4,
		MetricsAddr:              ":9090",
		AdminAddr:                ":9091",
		TLSCertFile:              "certs/server.crt",
		TLSKeyFile:               "certs/server.key",
		TLSCAFile:                "certs/ca.crt",
		Role:                     "leader",
		ScanCntIndexMgr:          128,
		ScanJobCntIndexMgr:       2,
		DelCntIndexMgr:           128,
		DelJobCntIndexMgr:        2,
		PauseTimeIndexMgrSeconds: 1,
	}
}

// Load reads path (JSON or YAML, chosen by extension) and merges it
// over Default. A missing file is not an error: callers get defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	unmarshal := json.Unmarshal
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}
	if err := unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePath joins path onto homeDir unless path is already absolute.
func ResolvePath(homeDir, path string) string {
	if path == "" {
		return homeDir
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(homeDir, path)
}

// PauseTimeIndexMgr returns the configured dispatch loop pause as a
// time.Duration.
func (c Config) PauseTimeIndexMgr() time.Duration {
	if c.PauseTimeIndexMgrSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.PauseTimeIndexMgrSeconds) * time.Second
}

// RequireTLS exits the process if mTLS material is not configured.
// The engine's wire protocol only ever runs with client certificates
// required, so a misconfigured deployment should fail loudly at
// startup rather than silently accept plaintext connections.
func RequireTLS(cfg Config, logger *slog.Logger) {
	if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" || cfg.TLSCAFile == "" {
		logger.Error("tls_cert_file, tls_key_file and tls_ca_file must all be set")
		os.Exit(1)
	}
}
