package module_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/module"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWhitelist(t *testing.T) {
	tt := []struct {
		name       string
		properties string
		username   string
		allowed    bool
	}{
		{name: "whitelist off", properties: "white-list=false\n", username: "Mallory", allowed: true},
		{name: "on and listed", properties: "white-list=true\n", username: "Alice", allowed: true},
		{name: "listed other case", properties: "white-list=true\n", username: "alice", allowed: true},
		{name: "on and not listed", properties: "white-list=true\n", username: "Mallory", allowed: false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, module.ServerPropertiesFileName, tc.properties)
			writeFile(t, dir, module.WhitelistFileName, `[{"uuid":"069a79f4-44e9-4726-a5be-fca90e38aaf5","name":"Alice"}]`)
			wl := module.NewWhitelist(dir)
			if err := wl.Reload(); err != nil {
				t.Fatal(err)
			}

			ok, err := wl.Allow(loginRequest(tc.username))
			if ok != tc.allowed {
				t.Fatalf("got allowed %v; want %v (err: %v)", ok, tc.allowed, err)
			}
			if !tc.allowed {
				var rejection *module.Rejection
				if !errors.As(err, &rejection) || rejection.Message != module.NotWhitelistedKick {
					t.Errorf("unexpected error: %v", err)
				}
				if !errors.Is(err, core.ErrNotWhitelisted) {
					t.Errorf("expected ErrNotWhitelisted but got %v", err)
				}
			}
		})
	}
}

func TestWhitelist_IgnoresStatus(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, module.ServerPropertiesFileName, "white-list=true\n")
	wl := module.NewWhitelist(dir)
	if err := wl.Reload(); err != nil {
		t.Fatal(err)
	}
	ok, err := wl.Allow(statusRequest())
	if !ok || err != nil {
		t.Errorf("status should be allowed, got %v %v", ok, err)
	}
}

func TestWhitelist_NoFiles(t *testing.T) {
	wl := module.NewWhitelist(t.TempDir())
	if err := wl.Reload(); err != nil {
		t.Fatal(err)
	}
	if wl.Enabled() {
		t.Error("whitelist should be disabled without server.properties")
	}
}
