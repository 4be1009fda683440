package util

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitLoggerWritesJSONFile(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	cfg := DefaultLogConfig()
	cfg.Directory = filepath.Join(t.TempDir(), "logs")
	cfg.Console = false
	cfg.Level = "debug"

	closer, err := InitLogger(cfg, "netsync-test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	l := ComponentLogger("server")
	l.Info().Uint32("net_id", 7).Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(cfg.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"component":"server"`, `"net_id":7`, `"app":"netsync-test"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s:\n%s", want, out)
		}
	}
}

func TestSetLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("level: %s", zerolog.GlobalLevel())
	}
	if err := SetLevel("loud"); err == nil {
		t.Fatalf("expected error for bad level")
	}
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "tls", "api.crt")
	key := filepath.Join(dir, "tls", "api.key")

	created, err := EnsureSelfSignedCert(cert, key, []string{"127.0.0.1", "localhost"})
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	if _, err := tls.LoadX509KeyPair(cert, key); err != nil {
		t.Fatalf("load pair: %v", err)
	}

	created, err = EnsureSelfSignedCert(cert, key, nil)
	if err != nil || created {
		t.Fatalf("second call should reuse files: created=%v err=%v", created, err)
	}
}
