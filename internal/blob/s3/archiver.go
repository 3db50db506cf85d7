package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// maxBatch bounds how many trades one archival run drains; anything beyond
// it is picked up by the next run.
const maxBatch = 10000

// BlobWriter is the narrow upload interface the archiver needs; *Writer
// satisfies it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// TradeArchiveStore provides the trade queries the archiver needs. The
// Postgres trade store satisfies it.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trade, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver: trades settled before the cutoff
// are serialized to JSONL, uploaded to S3, and then pruned from the primary
// store. Pruning happens only after the upload succeeded, so a failed upload
// leaves the rows in place for the next run.
type ArchiveImpl struct {
	writer BlobWriter
	trades TradeArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer BlobWriter, trades TradeArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		trades: trades,
		audit:  audit,
	}
}

// archivedTrade is the JSONL line format. Amounts travel as decimal strings
// and addresses as hex, matching the API representation.
type archivedTrade struct {
	ID        string `json:"id"`
	ItemID    uint64 `json:"item_id"`
	Kind      string `json:"kind"`
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer"`
	Quantity  uint64 `json:"quantity"`
	Amount    string `json:"amount"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

// ArchiveTrades drains all trades settled strictly before the cutoff,
// uploads them as one JSONL object at archive/trades/YYYY-MM.jsonl, records
// the event in the audit log, and deletes the archived rows. It returns the
// number of archived trades.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, cutoff time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, cutoff, maxBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, t := range trades {
		if err := enc.Encode(toArchivedTrade(t)); err != nil {
			return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
		}
	}
	count := int64(len(trades))

	// Deleting only up to the newest archived row keeps any trades beyond
	// maxBatch in place for the next run.
	pruneCutoff := cutoff
	if count == maxBatch {
		last := trades[len(trades)-1].CreatedAt
		if last.Before(cutoff) {
			pruneCutoff = last.Add(time.Nanosecond)
		}
	}

	path := archivePath("trades", cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.trades.DeleteBefore(ctx, pruneCutoff)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive trades prune: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

func toArchivedTrade(t domain.Trade) archivedTrade {
	return archivedTrade{
		ID:        t.ID,
		ItemID:    t.ItemID,
		Kind:      string(t.Kind),
		Seller:    t.Seller.Hex(),
		Buyer:     t.Buyer.Hex(),
		Quantity:  t.Quantity,
		Amount:    t.Amount.String(),
		Source:    string(t.Source),
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-08.jsonl
func archivePath(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, cutoff.Format("2006-01"))
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
