package config

import (
	"io"
	"os"
	"path"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.MaxFramesInFlight != 2 {
		t.Errorf("MaxFramesInFlight = %d, want 2", cfg.MaxFramesInFlight)
	}
	if cfg.AcquireTimeout != 0 {
		t.Errorf("AcquireTimeout = %s, want unbounded", cfg.AcquireTimeout)
	}
}

// The default shader paths must be where go generate writes them, relative
// to the default asset root at the top of the module.
func TestDefaultShadersMatchGenerate(t *testing.T) {
	const cmdDir = "cmd/texturedquad"
	src, err := os.ReadFile("../../" + cmdDir + "/main.go")
	if err != nil {
		t.Fatalf("read main.go: %v", err)
	}

	generated := map[string]bool{}
	for _, line := range strings.Split(string(src), "\n") {
		directive, ok := strings.CutPrefix(line, "//go:generate glslc ")
		if !ok {
			continue
		}
		_, out, ok := strings.Cut(directive, " -o ")
		if !ok {
			t.Fatalf("go:generate line %q has no -o", line)
		}
		generated[path.Join(cmdDir, strings.TrimSpace(out))] = true
	}

	cfg := Default()
	for _, p := range []string{cfg.VertexShader, cfg.FragmentShader} {
		if !generated[p] {
			t.Errorf("default shader %s is not produced by go generate (outputs %v)", p, generated)
		}
	}
	if cfg.AssetRoot != "." {
		t.Errorf("AssetRoot = %q, want the working directory", cfg.AssetRoot)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]string{
		"-width", "1024",
		"-height", "768",
		"-frames-in-flight", "3",
		"-acquire-timeout", "250ms",
		"-validation=false",
		"-spin", "90",
	}, io.Discard)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Width != 1024 || cfg.Height != 768 {
		t.Errorf("size = %dx%d, want 1024x768", cfg.Width, cfg.Height)
	}
	if cfg.MaxFramesInFlight != 3 {
		t.Errorf("MaxFramesInFlight = %d, want 3", cfg.MaxFramesInFlight)
	}
	if cfg.AcquireTimeout != 250*time.Millisecond {
		t.Errorf("AcquireTimeout = %s, want 250ms", cfg.AcquireTimeout)
	}
	if cfg.Validation {
		t.Error("Validation = true, want false")
	}
	if cfg.SpinDegreesPerSecond != 90 {
		t.Errorf("SpinDegreesPerSecond = %v, want 90", cfg.SpinDegreesPerSecond)
	}
	if cfg.Texture != Default().Texture {
		t.Errorf("Texture = %q, want default %q", cfg.Texture, Default().Texture)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero frames", []string{"-frames-in-flight", "0"}},
		{"too many frames", []string{"-frames-in-flight", "9"}},
		{"negative width", []string{"-width", "-1"}},
		{"negative timeout", []string{"-acquire-timeout", "-1s"}},
		{"unknown flag", []string{"-fullscreen"}},
		{"positional", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.args, io.Discard); err == nil {
				t.Errorf("Parse(%v) succeeded, want error", tt.args)
			}
		})
	}
}
