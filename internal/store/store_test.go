package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/kathakali/internal/retarget"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"profiles", "settings", "schema_migrations"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}

	version, dirty, err := s.Version()
	if err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Version() = %d dirty=%v, want 1 clean", version, dirty)
	}
}

func TestNewStore_ReopenIsNoop(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Profiles().Create(&Profile{Name: "stage", Settings: retarget.DefaultSettings()}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	if _, err := s.Profiles().GetByName("stage"); err != nil {
		t.Errorf("profile should survive reopen: %v", err)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := s.DB().Ping(); err == nil {
		t.Error("expected error pinging closed database")
	}
}

func TestProfileRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	settings := retarget.DefaultSettings()
	settings.Channels.Mouth = false
	settings.Smoothing.Head = 0.8

	p := &Profile{Name: "  streaming  ", Settings: settings}
	if err := repo.Create(p); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if p.ID == "" {
		t.Fatal("Create() should assign an ID")
	}
	if p.Name != "streaming" {
		t.Errorf("Name = %q, want trimmed", p.Name)
	}

	got, err := repo.GetByID(p.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.Name != "streaming" {
		t.Errorf("Name = %q, want streaming", got.Name)
	}
	if diff := cmp.Diff(settings, got.Settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	byName, err := repo.GetByName("streaming")
	if err != nil {
		t.Fatalf("GetByName() error: %v", err)
	}
	if byName.ID != p.ID {
		t.Errorf("GetByName() ID = %q, want %q", byName.ID, p.ID)
	}
}

func TestProfileRepository_Create_Errors(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	if err := repo.Create(&Profile{Name: "dup", Settings: retarget.DefaultSettings()}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	bad := retarget.DefaultSettings()
	bad.Smoothing.Eyes = 0

	tests := []struct {
		name    string
		profile Profile
		want    error
	}{
		{"duplicate name", Profile{Name: "dup", Settings: retarget.DefaultSettings()}, ErrDuplicate},
		{"empty name", Profile{Name: "   ", Settings: retarget.DefaultSettings()}, ErrInvalidProfile},
		{"invalid settings", Profile{Name: "bad", Settings: bad}, ErrInvalidProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.profile
			if err := repo.Create(&p); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProfileRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := repo.Create(&Profile{Name: name, Settings: retarget.DefaultSettings()}); err != nil {
			t.Fatalf("Create(%s) error: %v", name, err)
		}
	}

	profiles, err := repo.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	var names []string
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, names); diff != "" {
		t.Errorf("List() order (-want +got):\n%s", diff)
	}
}

func TestProfileRepository_Update(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	p := &Profile{Name: "before", Settings: retarget.DefaultSettings()}
	if err := repo.Create(p); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	p.Name = "after"
	p.Settings.Channels.Gaze = false
	if err := repo.Update(p); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := repo.GetByID(p.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.Name != "after" {
		t.Errorf("Name = %q, want after", got.Name)
	}
	if got.Settings.Channels.Gaze {
		t.Error("gaze channel should be disabled after update")
	}

	missing := &Profile{ID: "missing", Name: "x", Settings: retarget.DefaultSettings()}
	if err := repo.Update(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() missing error = %v, want ErrNotFound", err)
	}
}

func TestProfileRepository_Delete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	p := &Profile{Name: "gone", Settings: retarget.DefaultSettings()}
	if err := repo.Create(p); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := repo.Delete(p.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := repo.GetByID(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}
}

func TestProfile_DecodesOntoDefaults(t *testing.T) {
	s := newTestStore(t)

	_, err := s.DB().Exec(
		`INSERT INTO profiles (id, name, config) VALUES ('legacy', 'legacy', '{"channels":{"head":true}}')`,
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Profiles().GetByID("legacy")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	want := retarget.DefaultSettings()
	want.Channels = retarget.ChannelFlags{Head: true}
	if diff := cmp.Diff(want, got.Settings); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	if _, err := repo.Get("theme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}
	if err := repo.Set("theme", "dark"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := repo.Set("theme", "light"); err != nil {
		t.Fatalf("Set() overwrite error: %v", err)
	}
	v, err := repo.Get("theme")
	if err != nil || v != "light" {
		t.Errorf("Get() = %q, %v; want light", v, err)
	}
	if err := repo.Delete("theme"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := repo.Get("theme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestActiveProfile(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.ActiveProfile(); !errors.Is(err, ErrNotFound) {
		t.Errorf("ActiveProfile() unset error = %v, want ErrNotFound", err)
	}
	if err := s.SetActiveProfile("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetActiveProfile() missing error = %v, want ErrNotFound", err)
	}

	p := &Profile{Name: "live", Settings: retarget.DefaultSettings()}
	if err := s.Profiles().Create(p); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := s.SetActiveProfile(p.ID); err != nil {
		t.Fatalf("SetActiveProfile() error: %v", err)
	}
	got, err := s.ActiveProfile()
	if err != nil {
		t.Fatalf("ActiveProfile() error: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("ActiveProfile() ID = %q, want %q", got.ID, p.ID)
	}

	if err := s.Profiles().Delete(p.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.ActiveProfile(); !errors.Is(err, ErrNotFound) {
		t.Errorf("ActiveProfile() after delete error = %v, want ErrNotFound", err)
	}
}
