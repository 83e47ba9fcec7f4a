package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// MarketArchiveStore provides the read access the archiver needs. The
// PostgreSQL and memory stores satisfy it implicitly.
type MarketArchiveStore interface {
	Get(ctx context.Context, id string) (domain.Market, error)
}

// BetArchiveStore provides read access to a market's bets.
type BetArchiveStore interface {
	ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error)
}

// Archiver implements domain.Archiver: it serializes a resolved market and
// its full bet history to a single JSON document and uploads it to blob
// storage. The primary store keeps its rows; archival is an export, not a
// move.
type Archiver struct {
	writer  domain.BlobWriter
	markets MarketArchiveStore
	bets    BetArchiveStore
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver over the given writer and stores.
func NewArchiver(writer domain.BlobWriter, markets MarketArchiveStore, bets BetArchiveStore) *Archiver {
	return &Archiver{
		writer:  writer,
		markets: markets,
		bets:    bets,
	}
}

// marketArchive is the uploaded document layout.
type marketArchive struct {
	Market     domain.Market `json:"market"`
	Bets       []domain.Bet  `json:"bets"`
	ArchivedAt time.Time     `json:"archivedAt"`
}

// ArchiveMarket exports a market and its bets and returns the object path.
func (a *Archiver) ArchiveMarket(ctx context.Context, marketID string) (string, error) {
	m, err := a.markets.Get(ctx, marketID)
	if err != nil {
		return "", fmt.Errorf("s3blob: load market %s: %w", marketID, err)
	}
	bets, err := a.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return "", fmt.Errorf("s3blob: load bets for %s: %w", marketID, err)
	}

	doc := marketArchive{
		Market:     m,
		Bets:       bets,
		ArchivedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal archive %s: %w", marketID, err)
	}

	path := fmt.Sprintf("archive/markets/%s.json", marketID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload archive %s: %w", marketID, err)
	}
	return path, nil
}
