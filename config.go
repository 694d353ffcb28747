package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const configEnvPrefix = "TCP_AUDIT_LISTEN"

// Tunables, overridable from the environment
// (e.g. TCP_AUDIT_LISTEN_PERF_BUFFER_PAGES=64).
type config struct {
	EventChannelSize         int    `mapstructure:"event_channel_size"`
	DroppedEventsChannelSize int    `mapstructure:"dropped_events_channel_size"`
	PerfBufferPages          int    `mapstructure:"perf_buffer_pages"`
	BPFObjectPath            string `mapstructure:"bpf_object_path"`
	ProcPath                 string `mapstructure:"proc_path"`
	Snapshot                 bool   `mapstructure:"snapshot"`
	LogLevel                 string `mapstructure:"log_level"`
}

func loadConfig(v *viper.Viper) (*config, error) {
	v.SetDefault("event_channel_size", 1024)
	v.SetDefault("dropped_events_channel_size", 64)
	v.SetDefault("perf_buffer_pages", 16) // Number copied from existing libbpf tools
	v.SetDefault("bpf_object_path", "/usr/lib/tcp-audit/listen-eventer.bpf.o")
	v.SetDefault("proc_path", "/proc")
	v.SetDefault("snapshot", true)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(configEnvPrefix)
	v.AutomaticEnv()

	cfg := new(config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if cfg.PerfBufferPages <= 0 || cfg.PerfBufferPages&(cfg.PerfBufferPages-1) != 0 {
		return nil, fmt.Errorf("perf_buffer_pages must be a power of two, got %d", cfg.PerfBufferPages)
	}

	if cfg.EventChannelSize < 0 || cfg.DroppedEventsChannelSize < 0 {
		return nil, fmt.Errorf("channel sizes must not be negative")
	}

	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("parsing log_level: %w", err)
	}

	return cfg, nil
}
