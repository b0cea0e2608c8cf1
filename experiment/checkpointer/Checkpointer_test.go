package checkpointer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

// recorder records the filenames it is saved to
type recorder struct {
	files []string
	err   error
}

func (r *recorder) Save(filename string) error {
	if r.err != nil {
		return r.err
	}
	r.files = append(r.files, filename)
	return os.WriteFile(filename, []byte("ok"), 0644)
}

func TestNRound(t *testing.T) {
	dir := t.TempDir()
	r := &recorder{}
	c, err := NewNRound(3, r, FilenameEnumerator(0, dir, "policy", ".bin"))
	if err != nil {
		t.Fatal(err)
	}

	for round := 0; round < 7; round++ {
		if err := c.Checkpoint(round); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{
		filepath.Join(dir, "policy1.bin"),
		filepath.Join(dir, "policy2.bin"),
	}
	if len(r.files) != len(want) {
		t.Fatalf("checkpoints: want %v, have %v", want, r.files)
	}
	for i := range want {
		if r.files[i] != want[i] {
			t.Errorf("checkpoint %v: want %v, have %v", i, want[i],
				r.files[i])
		}
		if _, err := os.Stat(want[i]); err != nil {
			t.Error(err)
		}
	}
}

func TestNRoundErrors(t *testing.T) {
	if _, err := NewNRound(0, &recorder{}, FileTimer("", "x", "")); err == nil {
		t.Error("expected an error for a zero interval")
	}

	errSave := errors.New("disk full")
	c, _ := NewNRound(1, &recorder{err: errSave}, FileTimer(t.TempDir(),
		"x", ".bin"))
	if err := c.Checkpoint(0); !errors.Is(err, errSave) {
		t.Errorf("want save error, have %v", err)
	}
}

func TestMulti(t *testing.T) {
	dir := t.TempDir()
	a, b := &recorder{}, &recorder{}
	ca, _ := NewNRound(1, a, FilenameEnumerator(0, dir, "a", ".bin"))
	cb, _ := NewNRound(2, b, FilenameEnumerator(0, dir, "b", ".bin"))

	m := Multi{ca, cb}
	for round := 0; round < 4; round++ {
		if err := m.Checkpoint(round); err != nil {
			t.Fatal(err)
		}
	}
	if len(a.files) != 4 || len(b.files) != 2 {
		t.Errorf("checkpoints: have %v and %v", len(a.files), len(b.files))
	}
}

func TestFileTimer(t *testing.T) {
	name := FileTimer("runs", "reward", ".bin")()
	if !strings.HasPrefix(name, filepath.Join("runs", "reward-")) ||
		!strings.HasSuffix(name, ".bin") {
		t.Errorf("unexpected filename %v", name)
	}
}
