package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pastellaproject/pastella/config"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.pastella/key", filepath.Join(home, ".pastella/key")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestResolveCoinbase_Empty(t *testing.T) {
	if _, err := resolveCoinbase(""); err == nil {
		t.Fatal("expected error for empty coinbase")
	}
}

func TestResolveCoinbase_Invalid(t *testing.T) {
	if _, err := resolveCoinbase("not-an-address"); err == nil {
		t.Fatal("expected error for malformed coinbase")
	}
}

func TestFormatDifficulty(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{500, "500"},
		{1_500, "1.50K"},
		{2_500_000, "2.50M"},
		{3_000_000_000, "3.00G"},
	}
	for _, tt := range tests {
		if got := formatDifficulty(tt.in); got != tt.want {
			t.Errorf("formatDifficulty(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNodeLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tmpDir := t.TempDir()

	cfg := config.Default()
	cfg.Storage.DataDir = tmpDir
	cfg.Network.P2PPort = 0 // disable P2P for the test
	cfg.API.Port = 0        // disable the admin API for the test
	cfg.Blockchain.Genesis.PremineAddress = testPremineAddress
	cfg.Blockchain.Genesis.PremineAmount = 1_000_000

	if err := config.EnsureDataDirs(cfg); err != nil {
		t.Fatalf("EnsureDataDirs: %v", err)
	}

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if n.Chain().Height() != 0 {
		t.Errorf("expected height 0, got %d", n.Chain().Height())
	}

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// testPremineAddress is a syntactically valid P2PKH address used only to
// exercise genesis construction in tests.
const testPremineAddress = "1C1zA9oSMR6Zn5oCPsbgVVWJXqD1gKN9mK"
