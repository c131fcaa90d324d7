package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VoolFI71/go-rdb/internal/server"
)

func newCmd() *cobra.Command {
	viper.Reset()
	cmd := &cobra.Command{Use: "test"}
	SetupFlags(cmd)
	return cmd
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newCmd(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort || cfg.DumpFile != DefaultDump || cfg.Engine != server.EngineNet {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SaveInterval != 300*time.Second {
		t.Errorf("SaveInterval = %v", cfg.SaveInterval)
	}
	if cfg.ListenAddr() != "0.0.0.0:6379" {
		t.Errorf("ListenAddr = %s", cfg.ListenAddr())
	}
}

func TestLoadPositionalPort(t *testing.T) {
	cfg, err := Load(newCmd(), []string{"7000"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7000 {
		t.Fatalf("Port = %d", cfg.Port)
	}
	if _, err := Load(newCmd(), []string{"port"}); err == nil {
		t.Fatal("expected error for a non numeric port")
	}
}

func TestLoadFlagsAndEnv(t *testing.T) {
	cmd := newCmd()
	t.Setenv("RDB_DUMP_FILE", "/tmp/env.rdb")
	Init()
	if err := cmd.Flags().Set("engine", "gnet"); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cmd, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine != server.EngineGnet {
		t.Errorf("Engine = %s", cfg.Engine)
	}
	if cfg.DumpFile != "/tmp/env.rdb" {
		t.Errorf("DumpFile = %s", cfg.DumpFile)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(newCmd(), nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		engine  string
		wantErr bool
	}{
		{server.EngineNet, false},
		{server.EngineGnet, false},
		{"epoll", true},
	}
	for _, tt := range tests {
		cfg.Engine = tt.engine
		if err := cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(engine=%s) = %v, wantErr %v", tt.engine, err, tt.wantErr)
		}
	}
}
