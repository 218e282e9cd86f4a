package domain

import (
	"context"
	"errors"
)

// ErrStopStream can be returned by a batch callback to end a stream early
// without reporting a failure.
var ErrStopStream = errors.New("stop_stream")

// Source supplies an already fetched export. Large tables are streamed in
// batches of at most batchSize records; fn is called once per batch and the
// slice must not be retained after fn returns.
type Source interface {
	ReferenceTables(ctx context.Context) (ReferenceTables, error)
	StreamOrders(ctx context.Context, batchSize int, fn func([]Order) error) error
	StreamRegistrations(ctx context.Context, batchSize int, fn func([]Registration) error) error
	StreamRefunds(ctx context.Context, batchSize int, fn func([]Refund) error) error
}

// SliceSource serves in-memory tables through the Source contract.
type SliceSource struct {
	Tables        ReferenceTables
	Orders        []Order
	Registrations []Registration
	Refunds       []Refund
}

func (s *SliceSource) ReferenceTables(ctx context.Context) (ReferenceTables, error) {
	return s.Tables, ctx.Err()
}

func (s *SliceSource) StreamOrders(ctx context.Context, batchSize int, fn func([]Order) error) error {
	return streamSlice(ctx, s.Orders, batchSize, fn)
}

func (s *SliceSource) StreamRegistrations(ctx context.Context, batchSize int, fn func([]Registration) error) error {
	return streamSlice(ctx, s.Registrations, batchSize, fn)
}

func (s *SliceSource) StreamRefunds(ctx context.Context, batchSize int, fn func([]Refund) error) error {
	return streamSlice(ctx, s.Refunds, batchSize, fn)
}

func streamSlice[T any](ctx context.Context, items []T, batchSize int, fn func([]T) error) error {
	if batchSize <= 0 {
		batchSize = len(items)
	}
	for start := 0; start < len(items); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(items))
		if err := fn(items[start:end]); err != nil {
			if errors.Is(err, ErrStopStream) {
				return nil
			}
			return err
		}
	}
	return nil
}
