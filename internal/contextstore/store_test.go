package contextstore

import (
	"reflect"
	"testing"
)

func TestDirRoundTrip(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	if err := d.Write("notes/a.txt", []byte("alpha")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := d.Write("b.txt", []byte("beta")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := d.Read("notes/a.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "alpha" {
		t.Errorf("Read = %q, want alpha", got)
	}

	files, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"b.txt", "notes/a.txt"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("List = %v, want %v", files, want)
	}
}

func TestDirRejectsTraversal(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	for _, path := range []string{"../escape.txt", "/etc/passwd", "a/../../b"} {
		if err := d.Write(path, []byte("x")); err == nil {
			t.Errorf("Write(%q) succeeded, want error", path)
		}
	}
}

func TestDirOverwriteIsAtomicReplace(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	if err := d.Write("f.txt", []byte("one")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := d.Write("f.txt", []byte("two")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := d.Read("f.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("Read = %q, want two", got)
	}
	files, _ := d.List()
	if len(files) != 1 {
		t.Errorf("List = %v, want single file (no temp leftovers)", files)
	}
}
