// Package social implements record fetching, follow-graph scans, feed
// aggregation and append mutations over a ledger of social records.
package social

import (
	"context"

	"github.com/R3E-Network/ledgerfeed/internal/chain"
	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/metrics"
	"github.com/R3E-Network/ledgerfeed/internal/records"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// Fetcher turns addresses into typed records.
type Fetcher struct {
	ledger chain.Ledger
	log    *logger.Logger
}

// NewFetcher wraps a ledger client.
func NewFetcher(l chain.Ledger, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NewDefault("fetcher")
	}
	return &Fetcher{ledger: l, log: log}
}

// Maybe is one slot of a FetchMany result.
type Maybe[T any] struct {
	Value   T
	Present bool
}

// FetchOne reads and decodes the record at addr. It fails with a NotFound
// error when nothing is stored there and a Decode error when the bytes do not
// match schema.
func FetchOne[T any](ctx context.Context, f *Fetcher, addr ledger.Address, schema records.Schema[T]) (T, error) {
	var zero T
	raw, err := f.ledger.Fetch(ctx, addr)
	if err != nil {
		metrics.RecordFetch(schema.Name, fetchResult(err))
		return zero, err
	}
	v, err := schema.Decode(raw)
	if err != nil {
		metrics.RecordFetch(schema.Name, "decode_error")
		return zero, err
	}
	metrics.RecordFetch(schema.Name, "ok")
	return v, nil
}

// FetchMany reads addrs in one batch. Each slot is independent: absent or
// undecodable records come back as Present=false. The only error returned is
// the context's; a failed batch read is logged and reported as all-absent.
func FetchMany[T any](ctx context.Context, f *Fetcher, addrs []ledger.Address, schema records.Schema[T]) ([]Maybe[T], error) {
	out := make([]Maybe[T], len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}

	raws, err := f.ledger.FetchBatch(ctx, addrs)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		f.log.WithError(err).
			WithField("schema", schema.Name).
			WithField("count", len(addrs)).
			Warn("batch fetch failed; treating all slots as absent")
		metrics.RecordFetch(schema.Name, "error")
		return out, nil
	}

	for i := range addrs {
		if i >= len(raws) || raws[i] == nil {
			metrics.RecordFetch(schema.Name, "not_found")
			continue
		}
		v, err := schema.Decode(raws[i])
		if err != nil {
			f.log.WithError(err).
				WithField("schema", schema.Name).
				WithField("address", addrs[i].String()).
				Warn("skipping undecodable record")
			metrics.RecordFetch(schema.Name, "decode_error")
			continue
		}
		metrics.RecordFetch(schema.Name, "ok")
		out[i] = Maybe[T]{Value: v, Present: true}
	}
	return out, nil
}

func fetchResult(err error) string {
	switch {
	case errors.IsNotFound(err):
		return "not_found"
	case errors.IsDecode(err):
		return "decode_error"
	default:
		return "error"
	}
}
