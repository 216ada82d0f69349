// Package config loads the registrar's configuration (spec §6's
// enumerated configuration list) via a viper singleton, following the
// teacher repository's own config package shape: locate a YAML file by
// walking up from the working directory, then fall back to a user
// config directory, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Keys, matching spec §6's enumerated configuration list verbatim.
const (
	KeyLogfile                  = "logfile"
	KeySubdomainRegistrarDBPath = "subdomain_registrar_db_path"
	KeyLockfile                 = "lockfile"
	KeyTxLimit                  = "tx_limit"
	KeyTxFrequency              = "tx_frequency"
	KeyAPIBindAddress           = "api_bind_address"
	KeyAPIBindPort              = "api_bind_port"
	KeyCoreAPIEndpoint          = "core_api_endpoint"
	KeyCoreAPIAuthentication    = "core_api_authentication"
)

// Initialize sets up the viper configuration singleton. Should be
// called once at process startup, mirroring the teacher's
// config.Initialize.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := locateConfigFile(v)

	v.SetEnvPrefix("REGISTRAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogfile, "registrar.log")
	v.SetDefault(KeySubdomainRegistrarDBPath, "registrar-queue.db")
	v.SetDefault(KeyLockfile, "registrar.lock")
	v.SetDefault(KeyTxLimit, 100)
	v.SetDefault(KeyTxFrequency, 600)
	v.SetDefault(KeyAPIBindAddress, "127.0.0.1")
	v.SetDefault(KeyAPIBindPort, 8081)
	v.SetDefault(KeyCoreAPIEndpoint, "http://localhost:6270")
	v.SetDefault(KeyCoreAPIAuthentication, "")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read config file: %w", err)
		}
	}
	return nil
}

// locateConfigFile walks up from the working directory looking for
// .registrar/config.yaml, then falls back to the user config
// directory, mirroring the teacher's config-discovery precedence.
func locateConfigFile(v *viper.Viper) bool {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, ".registrar", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				return true
			}
		}
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(configDir, "registrar", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			v.SetConfigFile(candidate)
			return true
		}
	}
	return false
}

func ensureInitialized() {
	if v == nil {
		_ = Initialize()
	}
}

func GetString(key string) string {
	ensureInitialized()
	return v.GetString(key)
}

func GetInt(key string) int {
	ensureInitialized()
	return v.GetInt(key)
}

func GetLogfile() string                 { return GetString(KeyLogfile) }
func GetSubdomainRegistrarDBPath() string { return GetString(KeySubdomainRegistrarDBPath) }
func GetLockfile() string                { return GetString(KeyLockfile) }
func GetTxLimit() int                    { return GetInt(KeyTxLimit) }
func GetTxFrequency() time.Duration      { return time.Duration(GetInt(KeyTxFrequency)) * time.Second }
func GetAPIBindAddress() string          { return GetString(KeyAPIBindAddress) }
func GetAPIBindPort() int                { return GetInt(KeyAPIBindPort) }
func GetCoreAPIEndpoint() string         { return GetString(KeyCoreAPIEndpoint) }
func GetCoreAPIAuthentication() string   { return GetString(KeyCoreAPIAuthentication) }
