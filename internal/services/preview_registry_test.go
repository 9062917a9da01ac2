package services

import (
	"os"
	"testing"

	"github.com/Corphon/HotspotDeck/internal/storage"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

func newTestRegistry(t *testing.T) *PreviewRegistry {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(fs.Close)
	return NewPreviewRegistry(fs, utils.NewNop())
}

func TestInstallReplacesPreviousHandle(t *testing.T) {
	r := newTestRegistry(t)

	first, err := r.Install("sess-1", "c1", "a.png", "image/png", []byte("one"))
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	_, firstPath, ok := r.Lookup(first.Handle)
	if !ok {
		t.Fatal("first handle should be live")
	}

	second, err := r.Install("sess-1", "c1", "b.png", "image/png", []byte("two"))
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if second.Handle == first.Handle {
		t.Fatal("replacement must get a new handle")
	}

	if got := r.Count(); got != 1 {
		t.Fatalf("count got=%d want=1", got)
	}
	if _, _, ok := r.Lookup(first.Handle); ok {
		t.Fatal("old handle still resolves")
	}
	if _, err := os.Stat(firstPath); !os.IsNotExist(err) {
		t.Fatalf("old preview file: got err=%v want not exist", err)
	}

	cur, ok := r.ForContent("sess-1", "c1")
	if !ok || cur.Handle != second.Handle || cur.Filename != "b.png" {
		t.Fatalf("ForContent got=%+v ok=%v want handle %s", cur, ok, second.Handle)
	}
	_, path, ok := r.Lookup(second.Handle)
	if !ok {
		t.Fatal("new handle should be live")
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "two" {
		t.Fatalf("new preview data got=%q err=%v", data, err)
	}
}

func TestPreviewsAreScopedBySession(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Install("sess-1", "c1", "a.png", "image/png", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Install("sess-2", "c1", "b.png", "image/png", []byte("b")); err != nil {
		t.Fatal(err)
	}
	if got := r.Count(); got != 2 {
		t.Fatalf("count got=%d want=2", got)
	}

	if !r.Release("sess-1", "c1") {
		t.Fatal("Release should report a released handle")
	}
	if _, ok := r.ForContent("sess-1", "c1"); ok {
		t.Fatal("released preview still listed")
	}
	if _, ok := r.ForContent("sess-2", "c1"); !ok {
		t.Fatal("other session's preview must survive")
	}
	if r.Release("sess-1", "c1") {
		t.Fatal("second Release should be a no-op")
	}

	if got := r.ReleaseAll("sess-2"); got != 1 {
		t.Fatalf("ReleaseAll got=%d want=1", got)
	}
	if got := r.Count(); got != 0 {
		t.Fatalf("count got=%d want=0", got)
	}
}
