package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setActivationEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvToplevel, "/nix/store/abc-system")
	t.Setenv(EnvFirmware, "/nix/store/def-firmware/lib/firmware")
	t.Setenv(EnvModprobeBinary, "/nix/store/ghi-kmod/bin/modprobe")
	t.Setenv(EnvSystemdBinary, "/nix/store/jkl-systemd/lib/systemd/systemd")
}

func TestLoadActivationReadsEnvironment(t *testing.T) {
	setActivationEnv(t)

	cfg, err := LoadActivation()
	if err != nil {
		t.Fatalf("load activation: %v", err)
	}
	want := Activation{
		Toplevel:       "/nix/store/abc-system",
		Firmware:       "/nix/store/def-firmware/lib/firmware",
		ModprobeBinary: "/nix/store/ghi-kmod/bin/modprobe",
		SystemdBinary:  "/nix/store/jkl-systemd/lib/systemd/systemd",
	}
	if cfg != want {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadActivationNamesMissingVariable(t *testing.T) {
	for _, name := range []string{EnvToplevel, EnvFirmware, EnvModprobeBinary, EnvSystemdBinary} {
		t.Run(name, func(t *testing.T) {
			setActivationEnv(t)
			os.Unsetenv(name)

			_, err := LoadActivation()
			if !errors.Is(err, ErrConfigurationMissing) {
				t.Fatalf("expected ErrConfigurationMissing, got %v", err)
			}
			if !strings.Contains(err.Error(), name) {
				t.Fatalf("error does not name %s: %v", name, err)
			}
		})
	}
}

func TestLoadActivationTreatsEmptyAsMissing(t *testing.T) {
	setActivationEnv(t)
	t.Setenv(EnvSystemdBinary, "")

	if _, err := LoadActivation(); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestLoadLayoutDefaults(t *testing.T) {
	layout, err := LoadLayout("")
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	if layout != DefaultLayout() {
		t.Fatalf("unexpected layout: %+v", layout)
	}
}

func TestLoadLayoutOverridesDefinedKeysOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.toml")
	content := `
run_dir = "/tmp/run"
store_path = "/tmp/store/"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}

	layout, err := LoadLayout(path)
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	if layout.RunDir != "/tmp/run" {
		t.Fatalf("unexpected run dir: %q", layout.RunDir)
	}
	if layout.StorePath != "/tmp/store" {
		t.Fatalf("unexpected store path: %q", layout.StorePath)
	}
	if layout.Cmdline != "/proc/cmdline" {
		t.Fatalf("default cmdline lost: %q", layout.Cmdline)
	}
}

func TestLoadLayoutRejectsRelativeAndUnknown(t *testing.T) {
	dir := t.TempDir()

	relative := filepath.Join(dir, "relative.toml")
	if err := os.WriteFile(relative, []byte(`run_dir = "run"`), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	if _, err := LoadLayout(relative); err == nil {
		t.Fatalf("expected relative path error")
	}

	unknown := filepath.Join(dir, "unknown.toml")
	if err := os.WriteFile(unknown, []byte(`rundir = "/run"`), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	if _, err := LoadLayout(unknown); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestLayoutFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.toml")
	if err := os.WriteFile(path, []byte(`sysroot = "/mnt/sysroot"`), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	t.Setenv(EnvLayout, path)

	layout, err := LayoutFromEnv()
	if err != nil {
		t.Fatalf("layout from env: %v", err)
	}
	if layout.Sysroot != "/mnt/sysroot" {
		t.Fatalf("unexpected sysroot: %q", layout.Sysroot)
	}
}

func TestWriteLayoutRoundTripsThroughLoad(t *testing.T) {
	layout := DefaultLayout()
	layout.RunDir = "/tmp/run"

	var buf bytes.Buffer
	if err := WriteLayout(&buf, layout); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	path := filepath.Join(t.TempDir(), "layout.toml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := LoadLayout(path)
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	if got != layout {
		t.Fatalf("unexpected layout: %+v", got)
	}
}
