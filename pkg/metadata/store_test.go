package metadata

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	doc := []byte(`{"title": "Folkmängd"}`)
	if err := store.Save(ctx, "ssd/BE/BE0101/BefolkningNy", doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "ssd/BE/BE0101/BefolkningNy")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Errorf("Load() = %s, want %s", got, doc)
	}
}

func TestLocalStoreNotFound(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	_, err := store.Load(context.Background(), "ssd/NoSuchTable")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLocalStoreWalk(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	for _, path := range []string{"ssd/BE/Listing", "ssd/BE/BE0101/Table1", "ssd/AM/Table2"} {
		if err := store.Save(ctx, path, []byte(`{}`)); err != nil {
			t.Fatalf("Save(%s) error = %v", path, err)
		}
	}

	var visited []string
	if err := store.Walk(ctx, func(path string) error {
		visited = append(visited, path)
		return nil
	}); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	// Lexical order, slash-separated, extension stripped.
	want := []string{"ssd/AM/Table2", "ssd/BE/BE0101/Table1", "ssd/BE/Listing"}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("Walk() visited %v, want %v", visited, want)
	}
}

func TestLocalStoreWalkStops(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	for _, path := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, path, []byte(`{}`)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	stop := errors.New("stop")
	count := 0
	err := store.Walk(ctx, func(string) error {
		count++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("Walk() error = %v, want the callback's error", err)
	}
	if count != 1 {
		t.Errorf("callback ran %d times after stopping, want 1", count)
	}
}
