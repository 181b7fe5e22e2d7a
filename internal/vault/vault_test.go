package vault

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/db"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open("file:" + t.TempDir() + "/vault.db")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestGetOrCreateKeypair_ReturnsExisting(t *testing.T) {
	ctx := context.Background()
	svc := NewService(openTestDB(t), nil, "")

	first, created, errFirst := svc.GetOrCreateKeypair(ctx, 7)
	if errFirst != nil {
		t.Fatalf("GetOrCreateKeypair: %v", errFirst)
	}
	if !created {
		t.Fatalf("expected a new keypair")
	}
	if len(first.PublicKey) != 66 {
		t.Fatalf("expected compressed public key hex, got %q", first.PublicKey)
	}
	if first.DID != DIDPrefix+first.PublicKey {
		t.Fatalf("unexpected did %q", first.DID)
	}

	second, created, errSecond := svc.GetOrCreateKeypair(ctx, 7)
	if errSecond != nil {
		t.Fatalf("GetOrCreateKeypair again: %v", errSecond)
	}
	if created {
		t.Fatalf("expected existing keypair")
	}
	if second.ID != first.ID || second.PrivateKey != first.PrivateKey {
		t.Fatalf("expected same keypair, got %+v", second)
	}
}

func TestStoreDocument_RequiresKeypair(t *testing.T) {
	svc := NewService(openTestDB(t), nil, "")
	_, err := svc.StoreDocument(context.Background(), 3, "doc-1", "{}", "")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if apperr.Message(err, "") != "Keypair not found. Generate keypair first." {
		t.Fatalf("unexpected message %q", apperr.Message(err, ""))
	}
}

func TestStoreAndRetrieveDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(openTestDB(t), store, "docs/")
	kp, _, errKey := svc.GetOrCreateKeypair(ctx, 1)
	if errKey != nil {
		t.Fatalf("GetOrCreateKeypair: %v", errKey)
	}

	res, errStore := svc.StoreDocument(ctx, 1, "doc-1", `{"category":"income"}`, "aGVsbG8=")
	if errStore != nil {
		t.Fatalf("StoreDocument: %v", errStore)
	}
	if res.DocumentID != "doc-1" || res.Key != "docs/"+kp.DID+"/doc-1" {
		t.Fatalf("unexpected result %+v", res)
	}

	sealed, errGet := store.Get(ctx, res.Key)
	if errGet != nil {
		t.Fatalf("store.Get: %v", errGet)
	}
	if bytes.Contains(sealed, []byte("income")) {
		t.Fatalf("payload stored in plaintext")
	}

	env, errRetrieve := svc.RetrieveDocument(ctx, 1, "doc-1")
	if errRetrieve != nil {
		t.Fatalf("RetrieveDocument: %v", errRetrieve)
	}
	if env.RawOutput != `{"category":"income"}` || env.Base64Image != "aGVsbG8=" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestStoreDocument_GeneratesID(t *testing.T) {
	ctx := context.Background()
	svc := NewService(openTestDB(t), nil, "")
	if _, _, errKey := svc.GetOrCreateKeypair(ctx, 1); errKey != nil {
		t.Fatalf("GetOrCreateKeypair: %v", errKey)
	}
	res, errStore := svc.StoreDocument(ctx, 1, "  ", "raw", "")
	if errStore != nil {
		t.Fatalf("StoreDocument: %v", errStore)
	}
	if len(res.DocumentID) != 36 || !strings.HasPrefix(res.Key, "vault/") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRetrieveDocument_OtherUserCannotOpen(t *testing.T) {
	ctx := context.Background()
	svc := NewService(openTestDB(t), nil, "")
	for _, id := range []uint64{1, 2} {
		if _, _, errKey := svc.GetOrCreateKeypair(ctx, id); errKey != nil {
			t.Fatalf("GetOrCreateKeypair(%d): %v", id, errKey)
		}
	}
	if _, errStore := svc.StoreDocument(ctx, 1, "doc-1", "raw", ""); errStore != nil {
		t.Fatalf("StoreDocument: %v", errStore)
	}
	_, err := svc.RetrieveDocument(ctx, 2, "doc-1")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestOpen_RejectsWrongKey(t *testing.T) {
	sealed, errSeal := Seal([]byte("secret-a"), "doc", []byte("payload"))
	if errSeal != nil {
		t.Fatalf("Seal: %v", errSeal)
	}
	if _, err := Open([]byte("secret-b"), "doc", sealed); !errors.Is(err, ErrSealedPayload) {
		t.Fatalf("expected ErrSealedPayload, got %v", err)
	}
	if _, err := Open([]byte("secret-a"), "other", sealed); !errors.Is(err, ErrSealedPayload) {
		t.Fatalf("expected ErrSealedPayload for other document, got %v", err)
	}
	plain, errOpen := Open([]byte("secret-a"), "doc", sealed)
	if errOpen != nil || string(plain) != "payload" {
		t.Fatalf("Open: %q %v", plain, errOpen)
	}
}

func TestStoreDocument_RejectsPathTraversal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(openTestDB(t), store, "vault")
	victim, _, errVictim := svc.GetOrCreateKeypair(ctx, 1)
	if errVictim != nil {
		t.Fatalf("GetOrCreateKeypair victim: %v", errVictim)
	}
	if _, _, errKey := svc.GetOrCreateKeypair(ctx, 2); errKey != nil {
		t.Fatalf("GetOrCreateKeypair other: %v", errKey)
	}
	if _, errStore := svc.StoreDocument(ctx, 1, "doc1", "mine", ""); errStore != nil {
		t.Fatalf("StoreDocument victim: %v", errStore)
	}

	for _, id := range []string{"../" + victim.DID + "/doc1", "a/b", `a\b`, "..", "x..y"} {
		if _, err := svc.StoreDocument(ctx, 2, id, "theirs", ""); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("store %q: expected invalid input, got %v", id, err)
		}
		if _, err := svc.RetrieveDocument(ctx, 2, id); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("retrieve %q: expected invalid input, got %v", id, err)
		}
	}

	env, errGet := svc.RetrieveDocument(ctx, 1, "doc1")
	if errGet != nil {
		t.Fatalf("RetrieveDocument victim: %v", errGet)
	}
	if env.RawOutput != "mine" {
		t.Fatalf("victim document was overwritten: %q", env.RawOutput)
	}
}
