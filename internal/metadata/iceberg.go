package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DataFile describes one parquet results file produced by a detection run.
type DataFile struct {
	Path        string         `json:"path"`
	FileSize    int64          `json:"file_size_in_bytes"`
	RecordCount int64          `json:"record_count"`
	Partition   map[string]any `json:"partition"`
	Timestamp   time.Time      `json:"-"`
}

// ManifestEntry mirrors the information kept in an Iceberg manifest file.
// Status 1 marks the file as added in the owning snapshot.
type ManifestEntry struct {
	Status   int      `json:"status"`
	DataFile DataFile `json:"data_file"`
}

// Snapshot records one detection run's contribution to the results table,
// enough for time-travel queries over past runs.
type Snapshot struct {
	SnapshotID  int64             `json:"snapshot-id"`
	TimestampMs int64             `json:"timestamp-ms"`
	Manifest    string            `json:"manifest-list"`
	Summary     map[string]string `json:"summary"`
}

// partitionField is the single run-date partition column of the results table.
type partitionField struct {
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

// TableMetadata is the top level Iceberg metadata file for the results table.
type TableMetadata struct {
	FormatVersion     int              `json:"format-version"`
	TableUUID         string           `json:"table-uuid"`
	Location          string           `json:"location"`
	PartitionSpec     []partitionField `json:"partition-spec"`
	CurrentSnapshotID int64            `json:"current-snapshot-id"`
	Snapshots         []Snapshot       `json:"snapshots"`
}

// Generator incrementally builds Iceberg style metadata for a results table
// so runs can be queried like any other lakehouse dataset.
type Generator struct {
	basePath  string
	tableName string
	tableUUID string
	snapshots []Snapshot
}

// NewGenerator returns a metadata generator for the named table rooted at
// basePath. Each run appends one snapshot.
func NewGenerator(basePath, tableName string) *Generator {
	return &Generator{
		basePath:  basePath,
		tableName: tableName,
		tableUUID: uuid.NewString(),
	}
}

// AddFile records a newly written results file as its own snapshot and
// rewrites the table metadata.
func (g *Generator) AddFile(df DataFile) error {
	snapID := df.Timestamp.UnixNano()
	manifestFile := fmt.Sprintf("manifest-%d.json", snapID)
	manifestPath := filepath.Join(g.basePath, "metadata", manifestFile)
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return err
	}

	b, err := json.Marshal([]ManifestEntry{{Status: 1, DataFile: df}})
	if err != nil {
		return err
	}
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return err
	}

	g.snapshots = append(g.snapshots, Snapshot{
		SnapshotID:  snapID,
		TimestampMs: df.Timestamp.UnixMilli(),
		Manifest:    manifestFile,
		Summary: map[string]string{
			"operation":     "append",
			"added-files":   "1",
			"added-records": fmt.Sprintf("%d", df.RecordCount),
		},
	})
	return g.writeTableMetadata()
}

func (g *Generator) writeTableMetadata() error {
	if len(g.snapshots) == 0 {
		return nil
	}
	tm := TableMetadata{
		FormatVersion: 2,
		TableUUID:     g.tableUUID,
		Location:      g.basePath,
		PartitionSpec: []partitionField{
			{Name: "date", Transform: "identity"},
		},
		CurrentSnapshotID: g.snapshots[len(g.snapshots)-1].SnapshotID,
		Snapshots:         g.snapshots,
	}
	metaPath := filepath.Join(g.basePath, "metadata", "metadata.json")
	b, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, b, 0o644)
}

// WriteCatalogEntry publishes a pointer from a catalog directory to the
// current table metadata so external engines can discover the results table.
func (g *Generator) WriteCatalogEntry(catalogDir string) error {
	entry := map[string]string{
		"name":              g.tableName,
		"metadata_location": filepath.Join(g.basePath, "metadata", "metadata.json"),
	}
	if err := os.MkdirAll(catalogDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(catalogDir, fmt.Sprintf("%s.json", g.tableName))
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
