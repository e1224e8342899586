package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateStore_Memory(t *testing.T) {
	st, err := CreateStore(context.Background(), &StoreConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("CreateStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	ok, err := st.Exists(context.Background(), "/")
	if err != nil || !ok {
		t.Fatalf("Expected root to exist, got ok=%v err=%v", ok, err)
	}
}

func TestCreateStore_Filesystem(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")

	st, err := CreateStore(context.Background(), &StoreConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{"root": root, "max_open_files": "16"},
	})
	if err != nil {
		t.Fatalf("CreateStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Mkdirs(context.Background(), "/a/b"); err != nil {
		t.Fatalf("Mkdirs failed: %v", err)
	}
}

func TestCreateStore_Badger(t *testing.T) {
	st, err := CreateStore(context.Background(), &StoreConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": filepath.Join(t.TempDir(), "db")},
	})
	if err != nil {
		t.Fatalf("CreateStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Create(context.Background(), "/f", true); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

func TestCreateStore_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StoreConfig
		wantErr string
	}{
		{"unknown type", StoreConfig{Type: "tape"}, "unknown store type"},
		{"filesystem without root", StoreConfig{Type: "filesystem"}, "root is required"},
		{"badger without path", StoreConfig{Type: "badger"}, "db_path is required"},
		{"s3 without bucket", StoreConfig{Type: "s3", S3: map[string]any{"region": "us-east-1"}}, "bucket is required"},
		{"s3 without region", StoreConfig{Type: "s3", S3: map[string]any{"bucket": "b"}}, "region is required"},
		{"bad option type", StoreConfig{Type: "filesystem", Filesystem: map[string]any{"root": "/x", "max_open_files": "many"}}, "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateStore(context.Background(), &tt.cfg)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := CreateStore(ctx, &StoreConfig{Type: "memory"}); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())
	if result.Server != nil {
		t.Error("Expected no metrics server when disabled")
	}
	if result.BrokerMetrics == nil || result.StoreMetrics == nil {
		t.Error("Expected no-op collectors when disabled")
	}
}
