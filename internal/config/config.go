/*
Copyright 2024 The Entitynet Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config binds the reference entitysyncd binary's runtime flags to
// a small Config struct, the way cmd/operator binds pflag.StringVar/
// pflag.BoolVar calls directly into local variables rather than a
// generated flag struct. The core module itself takes no flags - every
// tunable here belongs to the demo wiring in cmd/entitysyncd, not
// pkg/connection, which has no notion of a process at all. cmd/entitysyncd
// currently reads only TickInterval and LogLevel.
package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Config holds the reference entitysyncd binary's tunables.
type Config struct {
	// MetricsBindAddress is bound as a flag but not read: cmd/entitysyncd
	// registers its metrics on a private registry and starts no HTTP
	// listener.
	MetricsBindAddress string

	// TickInterval is how often the demo loop calls Connection.Tick.
	TickInterval time.Duration

	// MaxInFlightPackets is bound as a flag but not read: cmd/entitysyncd
	// enforces no in-flight limit, and the core itself has none either,
	// since §4.9 only ages entries out by time.
	MaxInFlightPackets int

	// LogLevel is the zap level name ("debug", "info", "error", ...).
	LogLevel string
}

// Default returns the tunables the reference binary starts with absent
// any flag overrides.
func Default() Config {
	return Config{
		MetricsBindAddress: ":9090",
		TickInterval:       50 * time.Millisecond,
		MaxInFlightPackets: 4096,
		LogLevel:           "info",
	}
}

// BindFlags registers c's fields against fs, mirroring the
// pflag.StringVar/pflag.BoolVar-per-field style cmd/operator's main.go
// uses rather than a struct tag/env-driven loader.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.MetricsBindAddress, "metrics-bind-address", c.MetricsBindAddress,
		"Address for a Prometheus metrics endpoint (currently unused: no endpoint is served).")
	fs.DurationVar(&c.TickInterval, "tick-interval", c.TickInterval,
		"How often the demo loop drains outgoing commands and runs GC.")
	fs.IntVar(&c.MaxInFlightPackets, "max-in-flight-packets", c.MaxInFlightPackets,
		"Unacknowledged packet limit (currently unused: no limit is enforced).")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Logging level: debug, info, or error.")
}
