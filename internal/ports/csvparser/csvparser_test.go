package csvparser

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTempCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp CSV: %v", err)
	}
	return name
}

func TestStreamRows_ParsesKnownColumnsAndExtras(t *testing.T) {
	dir := t.TempDir()
	name := writeTempCSV(t, dir, "rows.csv",
		"title,brand,model,category,description,sku\n"+
			"Cordless Drill,DeWalt,DCD777,tools,18v drill,SKU-1\n"+
			"Hammer,,,hardware,,SKU-2\n")

	p := New(dir)
	it, err := p.StreamRows(context.Background(), name)
	if err != nil {
		t.Fatalf("StreamRows error: %v", err)
	}
	defer it.Close()

	row1, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if row1.Title != "Cordless Drill" || row1.Brand != "DeWalt" || row1.Model != "DCD777" {
		t.Fatalf("unexpected row: %+v", row1)
	}
	if row1.Extras["sku"] != "SKU-1" {
		t.Fatalf("expected unknown column to land in Extras, got %+v", row1.Extras)
	}

	row2, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if row2.Title != "Hammer" || row2.Brand != "" {
		t.Fatalf("unexpected row: %+v", row2)
	}

	if _, err := it.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected io.EOF after last row, got %v", err)
	}
}

func TestStreamRows_MissingFileReturnsError(t *testing.T) {
	p := New(t.TempDir())
	if _, err := p.StreamRows(context.Background(), "does-not-exist.csv"); err == nil {
		t.Fatal("expected an error for a missing source file")
	}
}

func TestStreamRows_EmptyFileReturnsHeaderReadError(t *testing.T) {
	dir := t.TempDir()
	name := writeTempCSV(t, dir, "empty.csv", "")

	p := New(dir)
	if _, err := p.StreamRows(context.Background(), name); err == nil {
		t.Fatal("expected an error reading the header of an empty file")
	}
}
