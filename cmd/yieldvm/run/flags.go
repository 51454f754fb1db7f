// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

const (
	ConfigFileKey      = "config-file"
	DBDirKey           = "db-dir"
	GenesisFileKey     = "genesis-file"
	HTTPHostKey        = "http-host"
	HTTPPortKey        = "http-port"
	AllowedOriginsKey  = "http-allowed-origins"
	ShutdownTimeoutKey = "http-shutdown-timeout"
)

var errInvalidPort = errors.New("http port must be below 65536")

func AddFlags(flags *pflag.FlagSet) {
	flags.String(ConfigFileKey, "", "VM config file (json, yaml or toml). YIELDVM_ environment variables override it")
	flags.String(DBDirKey, "", "Database directory. An in-memory database is used when empty")
	flags.String(GenesisFileKey, "", "Genesis file applied on first start")
	flags.String(HTTPHostKey, "127.0.0.1", "Address of the HTTP server")
	flags.Uint(HTTPPortKey, 9650, "Port of the HTTP server")
	flags.StringSlice(AllowedOriginsKey, []string{"*"}, "Origins allowed to make cross-origin requests")
	flags.Duration(ShutdownTimeoutKey, 10*time.Second, "Maximum time to wait for in-flight requests on shutdown")
}

type Config struct {
	ConfigFile      string
	DBDir           string
	GenesisFile     string
	HTTPHost        string
	HTTPPort        uint
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	var (
		c   Config
		err error
	)
	if c.ConfigFile, err = flags.GetString(ConfigFileKey); err != nil {
		return nil, err
	}
	if c.DBDir, err = flags.GetString(DBDirKey); err != nil {
		return nil, err
	}
	if c.GenesisFile, err = flags.GetString(GenesisFileKey); err != nil {
		return nil, err
	}
	if c.HTTPHost, err = flags.GetString(HTTPHostKey); err != nil {
		return nil, err
	}
	if c.HTTPPort, err = flags.GetUint(HTTPPortKey); err != nil {
		return nil, err
	}
	if c.HTTPPort > 65535 {
		return nil, errInvalidPort
	}
	if c.AllowedOrigins, err = flags.GetStringSlice(AllowedOriginsKey); err != nil {
		return nil, err
	}
	if c.ShutdownTimeout, err = flags.GetDuration(ShutdownTimeoutKey); err != nil {
		return nil, err
	}
	return &c, nil
}
