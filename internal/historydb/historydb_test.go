package historydb

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/plugins"
)

var _ plugins.HistoryStore = (*Store)(nil)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSaveLoad(t *testing.T) {
	s, path := openTemp(t)

	names, err := s.Load()
	if err != nil || len(names) != 0 {
		t.Fatalf("fresh Load() = %v, %v", names, err)
	}

	if err := s.Save([]string{"plug-in-blur", "plug-in-sharpen", "plug-in-blur"}); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	s.Close()

	again, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	names, err = again.Load()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"plug-in-blur", "plug-in-sharpen"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Load() = %v, want %v", names, want)
	}

	if err := again.Save(nil); err != nil {
		t.Fatal(err)
	}
	if names, _ := again.Load(); len(names) != 0 {
		t.Errorf("Load() after clearing = %v", names)
	}
}

func TestEntriesKeepUseTime(t *testing.T) {
	s, _ := openTemp(t)
	clock := time.Unix(1000, 0)
	s.now = func() time.Time { return clock }

	if err := s.Save([]string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	clock = time.Unix(2000, 0)
	if err := s.Save([]string{"b", "a"}); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{{"b", time.Unix(2000, 0)}, {"a", time.Unix(1000, 0)}}
	if len(entries) != len(want) {
		t.Fatalf("Entries() = %v", entries)
	}
	for i := range want {
		if entries[i].Name != want[i].Name || !entries[i].UsedAt.Equal(want[i].UsedAt) {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestManagerHistoryPersists(t *testing.T) {
	s, path := openTemp(t)
	cfg := plugins.DefaultConfig()
	cfg.HistorySize = 3
	m := plugins.NewManager(cfg, pdb.New(pdb.CompatOff), plugins.WithHistoryStore(s))

	for _, name := range []string{"plug-in-one", "plug-in-two"} {
		proc := plugins.NewProcedure(name, pdb.PlugIn, "/plug-ins/"+name)
		m.AddProcedure(proc)
		m.HistoryAdd(context.Background(), proc)
	}

	names, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"plug-in-two", "plug-in-one"}; !reflect.DeepEqual(names, want) {
		t.Errorf("stored history = %v, want %v (file %s)", names, want, path)
	}
}
