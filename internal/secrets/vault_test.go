package secrets_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Strob0t/Tasktrack/internal/secrets"
)

// rotating returns a loader that yields each snapshot in turn; a nil
// snapshot is a loader failure.
func rotating(snapshots ...map[string]string) secrets.Loader {
	i := 0
	return func() (map[string]string, error) {
		snap := snapshots[min(i, len(snapshots)-1)]
		i++
		if snap == nil {
			return nil, errors.New("secrets backend unavailable")
		}
		return snap, nil
	}
}

func TestVault_Rotation(t *testing.T) {
	v, err := secrets.NewVault(rotating(
		map[string]string{secrets.JWTSecret: "jwt-v1", secrets.SummarizerMasterKey: "sk-v1"},
		nil,
		map[string]string{secrets.JWTSecret: "jwt-v2"},
	))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	jwt := v.Source(secrets.JWTSecret)

	steps := []struct {
		name      string
		wantErr   bool
		wantJWT   string
		wantModel string
	}{
		{name: "failed reload keeps current values", wantErr: true, wantJWT: "jwt-v1", wantModel: "sk-v1"},
		{name: "rotation replaces the whole set", wantJWT: "jwt-v2", wantModel: ""},
	}
	for _, st := range steps {
		err := v.Reload()
		if (err != nil) != st.wantErr {
			t.Fatalf("%s: Reload err = %v", st.name, err)
		}
		if got := jwt(); got != st.wantJWT {
			t.Errorf("%s: jwt = %q, want %q", st.name, got, st.wantJWT)
		}
		if got := v.Get(secrets.SummarizerMasterKey); got != st.wantModel {
			t.Errorf("%s: master key = %q, want %q", st.name, got, st.wantModel)
		}
	}
}

func TestNewVault_LoaderError(t *testing.T) {
	if _, err := secrets.NewVault(rotating(nil)); err == nil {
		t.Fatal("expected error from failing loader")
	}
}

func TestVault_ConcurrentReload(t *testing.T) {
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{secrets.JWTSecret: "s"}, nil
	})
	src := v.Source(secrets.JWTSecret)

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			if src() != "s" {
				t.Error("source returned an unexpected value")
			}
		})
		wg.Go(func() { _ = v.Reload() })
	}
	wg.Wait()
}

func TestVault_Keys(t *testing.T) {
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"A": "1", "B": "2"}, nil
	})

	keys := v.Keys()
	if len(keys) != 2 || keys[0] != "A" || keys[1] != "B" {
		t.Fatalf("expected sorted keys [A B], got %v", keys)
	}
}

func TestEnvLoader(t *testing.T) {
	t.Setenv("TT_TEST_SECRET", "mysecret")
	loader := secrets.EnvLoader("TT_TEST_SECRET", "TT_MISSING_SECRET")

	vals, err := loader()
	if err != nil {
		t.Fatalf("EnvLoader failed: %v", err)
	}
	if vals["TT_TEST_SECRET"] != "mysecret" {
		t.Fatalf("expected 'mysecret', got %q", vals["TT_TEST_SECRET"])
	}
	if _, ok := vals["TT_MISSING_SECRET"]; ok {
		t.Fatal("expected missing env var to be omitted")
	}
}

func TestVault_SourceSeesReload(t *testing.T) {
	secret := "first"
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{secrets.JWTSecret: secret}, nil
	})
	src := v.Source(secrets.JWTSecret)

	secret = "second"
	if got := src(); got != "first" {
		t.Fatalf("expected value before reload, got %q", got)
	}
	if err := v.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := src(); got != "second" {
		t.Fatalf("expected rotated value, got %q", got)
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.yaml")
	if err := os.WriteFile(path, []byte("TASKTRACK_JWT_SECRET: from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	vals, err := secrets.FileLoader(path)()
	if err != nil {
		t.Fatalf("FileLoader failed: %v", err)
	}
	if vals[secrets.JWTSecret] != "from-file" {
		t.Fatalf("expected from-file, got %q", vals[secrets.JWTSecret])
	}

	vals, err = secrets.FileLoader(filepath.Join(dir, "missing.yaml"))()
	if err != nil || len(vals) != 0 {
		t.Fatalf("missing file: vals=%v err=%v", vals, err)
	}

	if err := os.WriteFile(path, []byte("not: [valid"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := secrets.FileLoader(path)(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMergeLaterWins(t *testing.T) {
	loader := secrets.Merge(
		secrets.StaticLoader(map[string]string{"A": "config", "B": "config", "C": ""}),
		func() (map[string]string, error) { return map[string]string{"B": "env"}, nil },
	)
	vals, err := loader()
	if err != nil {
		t.Fatal(err)
	}
	if vals["A"] != "config" || vals["B"] != "env" {
		t.Fatalf("unexpected merge result %v", vals)
	}
	if _, ok := vals["C"]; ok {
		t.Fatal("empty static values should be skipped")
	}

	failing := secrets.Merge(func() (map[string]string, error) { return nil, errors.New("boom") })
	if _, err := failing(); err == nil {
		t.Fatal("expected loader error to propagate")
	}
}
