package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGeneratorWritesSnapshotPerRun(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "opportunities")

	for i, date := range []string{"2023-06-01", "2023-06-02"} {
		df := DataFile{
			Path:        filepath.Join(dir, date, "opportunities.parquet"),
			FileSize:    100,
			RecordCount: int64(10 * (i + 1)),
			Partition:   map[string]any{"date": date},
			Timestamp:   time.Date(2023, 6, i+1, 0, 0, 0, 0, time.UTC),
		}
		if err := gen.AddFile(df); err != nil {
			t.Fatalf("AddFile: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "metadata", "metadata.json"))
	if err != nil {
		t.Fatalf("metadata not written: %v", err)
	}
	var tm TableMetadata
	if err := json.Unmarshal(data, &tm); err != nil {
		t.Fatalf("metadata not parseable: %v", err)
	}
	if len(tm.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(tm.Snapshots))
	}
	if tm.CurrentSnapshotID != tm.Snapshots[1].SnapshotID {
		t.Error("current snapshot does not point at the latest run")
	}
	if tm.Snapshots[1].Summary["added-records"] != "20" {
		t.Errorf("unexpected snapshot summary: %v", tm.Snapshots[1].Summary)
	}
}

func TestGeneratorCatalogEntry(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "opportunities")

	catalogDir := filepath.Join(dir, "catalog")
	if err := gen.WriteCatalogEntry(catalogDir); err != nil {
		t.Fatalf("catalog entry: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(catalogDir, "opportunities.json"))
	if err != nil {
		t.Fatalf("catalog entry not written: %v", err)
	}
	var entry map[string]string
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("catalog entry not parseable: %v", err)
	}
	if entry["metadata_location"] != filepath.Join(dir, "metadata", "metadata.json") {
		t.Errorf("unexpected metadata location: %s", entry["metadata_location"])
	}
}
