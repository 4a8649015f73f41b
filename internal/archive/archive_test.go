package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/depot/internal/codec"
	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/store"
	depottest "github.com/xtxerr/depot/internal/testing"
)

func testSamples(n int) []store.Sample {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := make([]store.Sample, n)
	for i := range samples {
		samples[i] = store.Sample{
			DeviceID: depottest.DeviceID,
			ModelID:  depottest.TimestampModelID,
			Position: scheme.At(base.Add(time.Duration(i) * time.Second)),
			Payload:  codec.Pack([]codec.Value{codec.U32(uint32(i)), codec.F64(float64(i))}),
		}
	}
	return samples
}

func TestWriterBasic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.parquet")

	w, err := NewWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteSamples(testSamples(10)); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}
	if w.RowCount() != 10 {
		t.Errorf("RowCount = %d, want 10", w.RowCount())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file should exist: %v", err)
	}
	if stat.Size() == 0 {
		t.Error("file should not be empty")
	}

	// Writing after close fails; closing twice does not.
	if err := w.WriteSamples(testSamples(1)); err != ErrWriterClosed {
		t.Errorf("write after close: got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.parquet")
	samples := testSamples(3)

	w, err := NewWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteSamples(samples); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if r.NumRows() != 3 {
		t.Fatalf("NumRows = %d, want 3", r.NumRows())
	}
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("read %d rows, want 3", len(rows))
	}

	sc := scheme.New(scheme.IndexingTimestamp)
	for i, row := range rows {
		if row.DeviceID != samples[i].DeviceID.String() {
			t.Errorf("row %d device = %s", i, row.DeviceID)
		}
		if sc.Compare(row.RowPosition(), samples[i].Position) != 0 {
			t.Errorf("row %d position = %+v, want %+v", i, row.RowPosition(), samples[i].Position)
		}
		if string(row.Payload) != string(samples[i].Payload) {
			t.Errorf("row %d payload = % x", i, row.Payload)
		}
	}
}

func TestBackupEntries(t *testing.T) {
	dir := t.TempDir()
	a := NewArchiver(dir, DefaultOptions())

	entries := []*store.BufferEntry{
		{
			DeviceID: depottest.DeviceID,
			ModelID:  depottest.StagedModelID,
			Position: scheme.At(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
			Payload:  codec.Pack([]codec.Value{codec.U32(7), codec.F64(21.5)}),
		},
	}
	path, err := a.BackupEntries(entries)
	if err != nil {
		t.Fatalf("BackupEntries: %v", err)
	}

	// Backups land under backup/<date>/ inside the archive root.
	rel, err := filepath.Rel(dir, path)
	if err != nil || filepath.Dir(filepath.Dir(rel)) != "backup" {
		t.Errorf("backup path = %s", path)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 1 || string(rows[0].Payload) != string(entries[0].Payload) {
		t.Errorf("rows = %+v", rows)
	}
}

func TestExportSlice(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	ctx := context.Background()

	for i := int32(0); i < 25; i++ {
		err := s.InsertSample(ctx, &store.Sample{
			DeviceID: depottest.DeviceID,
			ModelID:  depottest.IndexModelID,
			Position: scheme.AtIndex(i),
			Payload:  codec.Pack([]codec.Value{codec.U32(uint32(i)), codec.F64(0)}),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	sl := &store.Slice{
		DeviceID: depottest.DeviceID,
		ModelID:  depottest.IndexModelID,
		Begin:    scheme.AtIndex(5),
		End:      scheme.AtIndex(14),
		Name:     "middle",
	}
	if _, err := s.InsertSlice(ctx, sl); err != nil {
		t.Fatalf("insert slice: %v", err)
	}

	cur, err := s.ScanRange(ctx, sl.DeviceID, sl.ModelID, sl.Begin, sl.End)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	a := NewArchiver(t.TempDir(), DefaultOptions())
	path, rows, err := a.ExportSlice(ctx, sl, cur)
	if err != nil {
		t.Fatalf("ExportSlice: %v", err)
	}
	if rows != 10 {
		t.Errorf("exported %d rows, want 10", rows)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("read %d rows, want 10", len(got))
	}
	if got[0].Index != 5 || got[9].Index != 14 {
		t.Errorf("exported range %d..%d, want 5..14", got[0].Index, got[9].Index)
	}
}

func TestParseCompressionType(t *testing.T) {
	cases := map[string]CompressionType{
		"snappy": CompressionSnappy,
		"zstd":   CompressionZstd,
		"lz4":    CompressionLZ4,
		"gzip":   CompressionGzip,
		"none":   CompressionNone,
		"":       CompressionNone,
		"bogus":  CompressionZstd,
	}
	for in, want := range cases {
		if got := ParseCompressionType(in); got != want {
			t.Errorf("ParseCompressionType(%q) = %v, want %v", in, got, want)
		}
	}
}
