// LOCATION: internal/worker/processors.go
//
// Built-in stage processors. Convert normalizes payloads against the
// model's field layout, analyze sanity-checks the decoded values,
// transfer lands the data in the samples table, and backup exports the
// claim to Parquet before deletion.

package worker

import (
	"context"
	"fmt"

	"github.com/xtxerr/depot/internal/archive"
	"github.com/xtxerr/depot/internal/catalog"
	"github.com/xtxerr/depot/internal/codec"
	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/lifecycle"
	"github.com/xtxerr/depot/internal/store"
)

// RegisterDefaults installs the standard processors for the manager's
// mode.
func RegisterDefaults(m *Manager, s *store.Store, c catalog.Catalog, a *archive.Archiver) {
	m.Register(lifecycle.StatusConvert, &ConvertProcessor{store: s, catalog: c})
	m.Register(lifecycle.StatusAnalyzeGateway, &AnalyzeProcessor{catalog: c, strict: false})
	m.Register(lifecycle.StatusAnalyzeServer, &AnalyzeProcessor{catalog: c, strict: true})
	m.Register(lifecycle.StatusTransferGateway, &TransferProcessor{store: s})
	m.Register(lifecycle.StatusTransferServer, &TransferProcessor{store: s})
	m.Register(lifecycle.StatusBackup, &BackupProcessor{archiver: a})
}

// ConvertProcessor normalizes an entry's payload to the model's full
// field layout. Short payloads decode to trailing nulls; the
// re-encoded form is written back so later stages see fixed-width data.
type ConvertProcessor struct {
	store   *store.Store
	catalog catalog.Catalog
}

func (p *ConvertProcessor) Process(ctx context.Context, e *store.BufferEntry) error {
	model, err := p.catalog.GetModel(ctx, e.ModelID)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	full := codec.PayloadSize(model.Fields)
	if len(e.Payload) > full {
		return errors.NewInvalidValue("payload", len(e.Payload),
			fmt.Sprintf("model payload is %d bytes", full))
	}
	if len(e.Payload) == full {
		return nil
	}

	values := codec.Unpack(e.Payload, model.Fields)
	normalized := codec.Pack(values)
	if err := p.store.UpdateBufferPayload(ctx, e.ID, e.Status, normalized); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	e.Payload = normalized
	return nil
}

// AnalyzeProcessor sanity-checks the decoded values. The strict variant
// rejects payloads that are not full-width; both reject an all-null
// tuple, which indicates the sample carried no data at all.
type AnalyzeProcessor struct {
	catalog catalog.Catalog
	strict  bool
}

func (p *AnalyzeProcessor) Process(ctx context.Context, e *store.BufferEntry) error {
	model, err := p.catalog.GetModel(ctx, e.ModelID)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	if p.strict && len(e.Payload) != codec.PayloadSize(model.Fields) {
		return errors.NewInvalidValue("payload", len(e.Payload),
			fmt.Sprintf("want %d bytes", codec.PayloadSize(model.Fields)))
	}

	values := codec.Unpack(e.Payload, model.Fields)
	populated := 0
	for _, v := range values {
		if !v.IsNull() {
			populated++
		}
	}
	if len(values) > 0 && populated == 0 {
		return errors.NewInvalidValue("payload", len(e.Payload), "all fields null")
	}
	return nil
}

// TransferProcessor lands the entry's sample in the samples table. A
// position conflict means the sample already arrived through another
// path and is not an error.
type TransferProcessor struct {
	store *store.Store
}

func (p *TransferProcessor) Process(ctx context.Context, e *store.BufferEntry) error {
	err := p.store.InsertSample(ctx, &store.Sample{
		DeviceID: e.DeviceID,
		ModelID:  e.ModelID,
		Position: e.Position,
		Payload:  e.Payload,
	})
	if err != nil && !errors.Is(err, errors.ErrConflict) {
		return fmt.Errorf("transfer: %w", err)
	}
	return nil
}

// BackupProcessor exports the claim to a Parquet file before the
// entries reach the delete stage.
type BackupProcessor struct {
	archiver *archive.Archiver
}

func (p *BackupProcessor) ProcessBatch(ctx context.Context, entries []*store.BufferEntry) error {
	path, err := p.archiver.BackupEntries(entries)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	log.Debug("claim backed up", "path", path, "entries", len(entries))
	return nil
}

// Process satisfies Processor for single-entry claims.
func (p *BackupProcessor) Process(ctx context.Context, e *store.BufferEntry) error {
	return p.ProcessBatch(ctx, []*store.BufferEntry{e})
}
