package config

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestBindFlagsRegistersOneFlagPerSchemaField(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)

	for _, key := range []string{
		"server.ip", "server.port", "server.name", "server.owner", "server.debug",
		"server.auth_file", "server.ban_file", "server.motd_file", "server.db_file",
		"server.password", "server.status_addr",
		"api.endpoint", "api.key",
		"game.max_players", "game.terrain",
		"heartbeat_period", "shutdown_timeout",
	} {
		if flags.Lookup(key) == nil {
			t.Fatalf("expected a registered flag for %q", key)
		}
	}
}

func TestBindFlagsSetsDocumentedShorthands(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)

	cases := map[string]string{
		"server.port":  "p",
		"server.owner": "o",
		"server.name":  "n",
	}
	for key, want := range cases {
		got := flags.Lookup(key).Shorthand
		if got != want {
			t.Fatalf("got shorthand %q for %q, want %q", got, key, want)
		}
	}
}

func TestLoadPrefersExplicitlyPassedFlagOverEnv(t *testing.T) {
	t.Setenv("RORELAY_SERVER_OWNER", "envowner")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	if err := flags.Set("server.owner", "flagowner"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	dir := t.TempDir()
	cfg, _, err := Load(nil, dir+"/config.yaml", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Owner != "flagowner" {
		t.Fatalf("got owner %q, want flagowner (an explicitly passed flag beats env)", cfg.Server.Owner)
	}
}

// TestLoadFlagDefaultDoesNotMaskEnvWhenUnset checks that a
// registered-but-unpassed flag does not outrank an env var: viper's
// BindPFlags only prefers a flag's value over env when the flag was
// actually Set (pflag's Changed), and otherwise uses the flag's default
// only as a last resort, below env and the config file.
func TestLoadFlagDefaultDoesNotMaskEnvWhenUnset(t *testing.T) {
	t.Setenv("RORELAY_SERVER_OWNER", "envowner")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags) // server.owner left at its Default() value, never Set

	dir := t.TempDir()
	cfg, _, err := Load(nil, dir+"/config.yaml", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Owner != "envowner" {
		t.Fatalf("got owner %q, want envowner (env should win when the flag was never passed)", cfg.Server.Owner)
	}
}
