// Package scheme implements the polymorphic sample addressing scheme.
//
// Every model fixes one indexing mode at creation time. The mode decides
// the shape of a sample's position - a sequence index, a timestamp, a
// timestamp plus index, or a microsecond timestamp - and with it the
// total order of all samples of one (device, model) pair. Slices and
// sets stay mode-agnostic by going through Scheme for comparison,
// validation, and key encoding.
package scheme

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/xtxerr/depot/internal/errors"
)

// =============================================================================
// Indexing Mode
// =============================================================================

// Indexing selects the position shape for a model.
type Indexing int

const (
	// IndexingTimestamp keys samples by timestamp at second resolution.
	IndexingTimestamp Indexing = iota
	// IndexingIndex keys samples by a monotonically increasing sequence
	// index scoped to (device, model). Index values are opaque markers;
	// gaps are permitted.
	IndexingIndex
	// IndexingTimestampIndex keys samples by (timestamp, index). The
	// timestamp may repeat; the index disambiguates samples that share
	// one second.
	IndexingTimestampIndex
	// IndexingTimestampMicros keys samples by timestamp at microsecond
	// resolution. Two samples at the same microsecond are a conflict,
	// not something the scheme resolves.
	IndexingTimestampMicros
)

// String returns the canonical string form of the indexing mode.
func (i Indexing) String() string {
	switch i {
	case IndexingTimestamp:
		return "timestamp"
	case IndexingIndex:
		return "index"
	case IndexingTimestampIndex:
		return "timestamp_index"
	case IndexingTimestampMicros:
		return "timestamp_micros"
	default:
		return "unknown"
	}
}

// ParseIndexing parses the string form of an indexing mode.
func ParseIndexing(s string) (Indexing, error) {
	switch s {
	case "timestamp":
		return IndexingTimestamp, nil
	case "index":
		return IndexingIndex, nil
	case "timestamp_index":
		return IndexingTimestampIndex, nil
	case "timestamp_micros":
		return IndexingTimestampMicros, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, errors.ErrInvalidIndexing)
	}
}

// HasTimestamp reports whether positions of this mode carry a timestamp.
func (i Indexing) HasTimestamp() bool {
	return i != IndexingIndex
}

// HasIndex reports whether positions of this mode carry a sequence index.
func (i Indexing) HasIndex() bool {
	return i == IndexingIndex || i == IndexingTimestampIndex
}

// =============================================================================
// Position
// =============================================================================

// Position locates one sample within a (device, model) pair's total
// order. Which fields are meaningful depends on the model's indexing
// mode; the unused field must be zero.
type Position struct {
	Timestamp time.Time
	Index     int32
}

// At returns a timestamp-only position.
func At(ts time.Time) Position {
	return Position{Timestamp: ts}
}

// AtIndex returns an index-only position.
func AtIndex(index int32) Position {
	return Position{Index: index}
}

// AtBoth returns a timestamp+index position.
func AtBoth(ts time.Time, index int32) Position {
	return Position{Timestamp: ts, Index: index}
}

// =============================================================================
// Scheme
// =============================================================================

// DefaultEpoch is the earliest timestamp accepted for timestamped
// positions unless a scheme is constructed with its own epoch.
var DefaultEpoch = time.Unix(0, 0).UTC()

// Scheme binds an indexing mode to position validation, ordering, and
// key encoding. The zero value is a timestamp scheme with DefaultEpoch.
type Scheme struct {
	mode  Indexing
	epoch time.Time
}

// New creates a Scheme for the given mode using DefaultEpoch.
func New(mode Indexing) Scheme {
	return Scheme{mode: mode, epoch: DefaultEpoch}
}

// NewWithEpoch creates a Scheme with a custom earliest-acceptable
// timestamp. The epoch only constrains timestamped modes.
func NewWithEpoch(mode Indexing, epoch time.Time) Scheme {
	return Scheme{mode: mode, epoch: epoch.UTC()}
}

// Mode returns the scheme's indexing mode.
func (s Scheme) Mode() Indexing {
	return s.mode
}

// Validate checks that p is well-formed under the scheme's mode.
// A position carrying a component the mode does not use fails with
// ErrSchemeMismatch; out-of-bounds components fail with the same
// sentinel so callers only need one check.
func (s Scheme) Validate(p Position) error {
	if s.mode.HasTimestamp() {
		if p.Timestamp.IsZero() {
			return fmt.Errorf("%s position requires a timestamp: %w", s.mode, errors.ErrSchemeMismatch)
		}
		if p.Timestamp.Before(s.epoch) {
			return fmt.Errorf("timestamp %s before epoch %s: %w",
				p.Timestamp.UTC().Format(time.RFC3339), s.epoch.Format(time.RFC3339), errors.ErrSchemeMismatch)
		}
	} else if !p.Timestamp.IsZero() {
		return fmt.Errorf("%s position must not carry a timestamp: %w", s.mode, errors.ErrSchemeMismatch)
	}

	if s.mode.HasIndex() {
		if p.Index < 0 {
			return fmt.Errorf("index %d must not be negative: %w", p.Index, errors.ErrSchemeMismatch)
		}
	} else if p.Index != 0 {
		return fmt.Errorf("%s position must not carry an index: %w", s.mode, errors.ErrSchemeMismatch)
	}

	return nil
}

// Canonical reduces p to the resolution the mode actually stores:
// seconds for timestamp and timestamp_index, microseconds for
// timestamp_micros. The result is what gets persisted and compared.
func (s Scheme) Canonical(p Position) Position {
	switch s.mode {
	case IndexingTimestamp:
		return Position{Timestamp: p.Timestamp.UTC().Truncate(time.Second)}
	case IndexingIndex:
		return Position{Index: p.Index}
	case IndexingTimestampIndex:
		return Position{Timestamp: p.Timestamp.UTC().Truncate(time.Second), Index: p.Index}
	case IndexingTimestampMicros:
		return Position{Timestamp: p.Timestamp.UTC().Truncate(time.Microsecond)}
	default:
		return p
	}
}

// Compare orders two positions under the scheme's mode. It returns a
// negative number when a sorts before b, zero when they address the
// same sample, and a positive number otherwise. For timestamp_index,
// equal timestamps are broken by index ascending.
func (s Scheme) Compare(a, b Position) int {
	a, b = s.Canonical(a), s.Canonical(b)

	switch s.mode {
	case IndexingIndex:
		return compareInt32(a.Index, b.Index)
	case IndexingTimestamp, IndexingTimestampMicros:
		return a.Timestamp.Compare(b.Timestamp)
	case IndexingTimestampIndex:
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return compareInt32(a.Index, b.Index)
	default:
		return 0
	}
}

func compareInt32(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ValidateRange checks that begin and end are both well-formed and that
// begin does not compare after end.
func (s Scheme) ValidateRange(begin, end Position) error {
	if err := s.Validate(begin); err != nil {
		return errors.Wrap(err, "range begin")
	}
	if err := s.Validate(end); err != nil {
		return errors.Wrap(err, "range end")
	}
	if s.Compare(begin, end) > 0 {
		return errors.ErrInvalidRange
	}
	return nil
}

// Contains reports whether p falls within [begin, end] inclusive.
func (s Scheme) Contains(p, begin, end Position) bool {
	return s.Compare(begin, p) <= 0 && s.Compare(p, end) <= 0
}

// =============================================================================
// Key Encoding
// =============================================================================

// KeySize is the fixed width of an encoded position key.
const KeySize = 12

// Key is a fixed-width, byte-sortable encoding of a canonical position:
// 8 bytes of big-endian unix microseconds followed by 4 bytes of
// big-endian index. bytes.Compare on two keys of the same scheme agrees
// with Scheme.Compare.
type Key [KeySize]byte

// EncodeKey encodes the canonical form of p.
func (s Scheme) EncodeKey(p Position) Key {
	p = s.Canonical(p)

	var k Key
	var micros int64
	if s.mode.HasTimestamp() {
		micros = p.Timestamp.UnixMicro()
	}
	// Sign-flip so byte order survives timestamps before 1970.
	binary.BigEndian.PutUint64(k[0:8], uint64(micros)^(1<<63))
	binary.BigEndian.PutUint32(k[8:12], uint32(p.Index))
	return k
}

// DecodeKey reverses EncodeKey.
func (s Scheme) DecodeKey(k Key) Position {
	var p Position
	if s.mode.HasTimestamp() {
		micros := int64(binary.BigEndian.Uint64(k[0:8]) ^ (1 << 63))
		p.Timestamp = time.UnixMicro(micros).UTC()
	}
	if s.mode.HasIndex() {
		p.Index = int32(binary.BigEndian.Uint32(k[8:12]))
	}
	return p
}

// CompareKeys orders two encoded keys. Valid only for keys produced by
// the same scheme.
func CompareKeys(a, b Key) int {
	return bytes.Compare(a[:], b[:])
}
