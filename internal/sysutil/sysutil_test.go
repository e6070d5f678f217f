package sysutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func restoreLogging(t *testing.T) {
	t.Helper()
	level, logger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(level)
		log.Logger = logger
	})
}

func TestSetLogLevel(t *testing.T) {
	restoreLogging(t)

	for in, want := range map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		" Debug\t":  zerolog.DebugLevel,
		"INFO":      zerolog.InfoLevel,
		"warning":   zerolog.WarnLevel,
		"warn":      zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"fatal":     zerolog.FatalLevel,
		"panic":     zerolog.PanicLevel,
		"":          zerolog.InfoLevel,
		"trace":     zerolog.InfoLevel,
		"disabled":  zerolog.InfoLevel,
		"verbose":   zerolog.InfoLevel,
	} {
		SetLogLevel(in)
		if got := zerolog.GlobalLevel(); got != want {
			t.Fatalf("SetLogLevel(%q): level %v; want %v", in, got, want)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	l := SetupLogger(&buf, "warn", false)
	l.Info().Msg("below threshold")
	log.Warn().Str("case_id", "c-1").Msg("claim raced")

	out := buf.String()
	if strings.Contains(out, "below threshold") {
		t.Fatalf("info leaked at warn level: %s", out)
	}
	for _, want := range []string{`"case_id":"c-1"`, `"service":"rescue-dispatch"`, `"level":"warn"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}

	buf.Reset()
	SetupLogger(&buf, "debug", true)
	log.Debug().Msg("thread opened")
	if got := buf.String(); strings.HasPrefix(got, "{") || !strings.Contains(got, "thread opened") {
		t.Fatalf("pretty output = %q", got)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "rescue.env")
	body := "RESCUE_SYSUTIL_CHANNEL=from-file\nRESCUE_SYSUTIL_ROLE=from-file\n"
	if err := os.WriteFile(envFile, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RESCUE_SYSUTIL_ROLE", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("RESCUE_SYSUTIL_CHANNEL") })

	loaded, err := LoadEnvFiles(" ", filepath.Join(dir, "absent.env"), envFile)
	if err != nil || len(loaded) != 1 || loaded[0] != envFile {
		t.Fatalf("loaded=%v err=%v", loaded, err)
	}
	if os.Getenv("RESCUE_SYSUTIL_CHANNEL") != "from-file" {
		t.Fatal("file value not loaded")
	}
	if os.Getenv("RESCUE_SYSUTIL_ROLE") != "from-env" {
		t.Fatal("process environment must take precedence")
	}

	if _, err := LoadEnvFiles(dir); err == nil {
		t.Fatal("a directory is not a dotenv file")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{" ", "\t"}, ""},
		{[]string{"", " 8080 ", "9090"}, " 8080 "},
		{[]string{"8080", "9090"}, "8080"},
	}
	for _, tc := range cases {
		if got := FirstNonEmpty(tc.in...); got != tc.want {
			t.Fatalf("FirstNonEmpty(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
