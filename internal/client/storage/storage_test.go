package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_MissingFile(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "session.json"), "")

	token, found, err := fs.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found || token != "" {
		t.Errorf("expected no token, got %q (found=%v)", token, found)
	}
}

func TestFileStore_SetGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	fs := NewFileStore(path, "")
	ctx := context.Background()

	if err := fs.Set(ctx, "abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	token, found, err := fs.Get(ctx)
	if err != nil || !found || token != "abc" {
		t.Fatalf("Get = %q, %v, %v; want abc, true, nil", token, found, err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var onDisk map[string]any
	if err := json.Unmarshal(buf, &onDisk); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if onDisk[TokenKey] != "abc" {
		t.Errorf("unexpected file content: %s", buf)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %v; want 0600", perm)
	}
}

func TestFileStore_LastWriteWins(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "session.json"), "")
	ctx := context.Background()

	_ = fs.Set(ctx, "first")
	_ = fs.Set(ctx, "second")

	token, _, _ := fs.Get(ctx)
	if token != "second" {
		t.Errorf("token = %q; want second", token)
	}
}

func TestFileStore_DeleteIsIdempotent(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "session.json"), "")
	ctx := context.Background()

	if err := fs.Delete(ctx); err != nil {
		t.Fatalf("Delete on empty store failed: %v", err)
	}
	_ = fs.Set(ctx, "abc")
	if err := fs.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := fs.Get(ctx); found {
		t.Error("token still present after Delete")
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("not-json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := NewFileStore(path, "").Get(context.Background())
	if err == nil || !strings.Contains(err.Error(), "decode token file") {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestFileStore_Sealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	if err := NewFileStore(path, "hunter2").Set(ctx, "secret-token"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	buf, _ := os.ReadFile(path)
	if strings.Contains(string(buf), "secret-token") {
		t.Fatalf("token stored in clear text: %s", buf)
	}

	token, found, err := NewFileStore(path, "hunter2").Get(ctx)
	if err != nil || !found || token != "secret-token" {
		t.Fatalf("Get = %q, %v, %v", token, found, err)
	}

	if _, _, err := NewFileStore(path, "").Get(ctx); err != ErrPassphraseRequired {
		t.Errorf("Get without passphrase: err = %v; want ErrPassphraseRequired", err)
	}
	if _, _, err := NewFileStore(path, "wrong").Get(ctx); err == nil {
		t.Error("Get with wrong passphrase succeeded")
	}
}

func TestMemoryStore(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	if _, found, _ := ms.Get(ctx); found {
		t.Fatal("new store should be empty")
	}
	_ = ms.Set(ctx, "a")
	_ = ms.Set(ctx, "b")
	if token, found, _ := ms.Get(ctx); !found || token != "b" {
		t.Errorf("Get = %q, %v; want b, true", token, found)
	}
	_ = ms.Delete(ctx)
	_ = ms.Delete(ctx)
	if _, found, _ := ms.Get(ctx); found {
		t.Error("token still present after Delete")
	}
}
