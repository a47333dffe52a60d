package account

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	store, err := NewStore(nil, path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, path
}

func TestGetUnknownIDReturnsDefaults(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	acc := store.Get("42")
	if acc.ID != "42" {
		t.Fatalf("unexpected id: %q", acc.ID)
	}
	if acc.Inbox.Enable || acc.Inbox.Mode != ModeNone {
		t.Fatalf("inbox not at defaults: %+v", acc.Inbox)
	}
	if acc.Cloud.Token != "" || acc.Service.Token != "" {
		t.Fatalf("tokens not empty")
	}
	if acc.Service.AssetsDir != DefaultAssetsDir {
		t.Fatalf("unexpected assets dir: %q", acc.Service.AssetsDir)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t)
	acc := New("alice")
	acc.Inbox.Enable = true
	acc.Inbox.Mode = ModeCloud
	acc.Cloud.Token = "secret-token"
	if err := store.Put(acc); err != nil {
		t.Fatalf("put: %v", err)
	}
	require.Equal(t, acc, store.Get("alice"))

	// Mutations persist through a reload.
	reloaded, err := NewStore(nil, path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	require.Equal(t, acc, reloaded.Get("alice"))
}

func TestDeleteAccount(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	if err := store.Put(New("bob")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete("bob"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := store.Get("bob"); got.Inbox.Enable {
		t.Fatalf("account not reset after delete")
	}
	// Absent id is a no-op.
	if err := store.Delete("nobody"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestMalformedCollectionIsFatal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte("{corrupt"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewStore(nil, path); err == nil {
		t.Fatalf("expected error for malformed collection")
	}
}

func TestSaveKeepsNonASCII(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t)
	acc := New("小明")
	acc.Service.Notebook = "收集箱"
	if err := store.Put(acc); err != nil {
		t.Fatalf("put: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "收集箱") {
		t.Fatalf("non-ASCII escaped in output: %s", raw)
	}
}

func TestMutationsRollBackOnWriteFailure(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t)
	acc := New("u1")
	acc.Cloud.Token = "tok"
	require.NoError(t, store.Put(acc))

	// Turn the backing file into a directory so the next flush fails.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	changed := acc
	changed.Cloud.Token = "other"
	if err := store.Put(changed); err == nil {
		t.Fatal("put succeeded against a directory path")
	}
	if got := store.Get("u1"); got.Cloud.Token != "tok" {
		t.Fatalf("failed put leaked into memory: %q", got.Cloud.Token)
	}

	if err := store.Put(New("u2")); err == nil {
		t.Fatal("put succeeded against a directory path")
	}
	if err := store.Delete("u1"); err == nil {
		t.Fatal("delete succeeded against a directory path")
	}
	if got := store.Get("u1"); got.Cloud.Token != "tok" {
		t.Fatalf("failed delete removed the record: %+v", got)
	}

	// Once the path is writable again the collection holds exactly the
	// pre-failure state, so the rolled-back insert must not reappear.
	require.NoError(t, os.Remove(path))
	require.NoError(t, store.Put(acc))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	if strings.Contains(string(raw), `"u2"`) {
		t.Fatalf("rolled-back insert persisted: %s", raw)
	}
}
