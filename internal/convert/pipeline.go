package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/parq/internal/batch"
	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/csvio"
	"github.com/raphaelgruber/parq/internal/faults"
	"github.com/raphaelgruber/parq/internal/metrics"
	"github.com/raphaelgruber/parq/internal/schema"
)

// Stats summarises one conversion run.
type Stats struct {
	Rows        int64
	BadRows     int64
	Batches     int64
	NulledCells map[string]int64
	Elapsed     time.Duration
}

// Pipeline owns one conversion. A fresh pipeline is built per job; nothing
// is shared between invocations.
type Pipeline struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a pipeline with the given configuration.
func New(cfg config.Config, logger *slog.Logger, collector *metrics.Collector) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger, metrics: collector}
}

// Run streams src through frame→coerce→batch→encode and writes the Parquet
// bytes to dst. The producer and consumer are joined on one bounded
// channel; cancelling ctx tears both down and surfaces the cause.
func (p *Pipeline) Run(ctx context.Context, src io.Reader, dst io.Writer, declared schema.Schema) (Stats, error) {
	start := time.Now()

	pqSchema, err := ParquetSchema(declared)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{NulledCells: make(map[string]int64)}
	batches := make(chan *batch.Batch, p.cfg.ChannelCap)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		return p.produce(ctx, src, declared, batches, &stats)
	})

	g.Go(func() error {
		rows, err := WriteBatches(dst, pqSchema, batches)
		if err != nil {
			// Drain so a blocked producer can observe cancellation.
			for range batches {
			}
			return err
		}
		p.logger.Debug("parquet writer finished", "rows", rows)
		return nil
	})

	err = g.Wait()
	stats.Elapsed = time.Since(start)

	p.metrics.RecordTiming(metrics.OpConvert, stats.Elapsed)
	p.metrics.AddCount(metrics.CounterRows, stats.Rows)
	p.metrics.AddCount(metrics.CounterBadRows, stats.BadRows)
	p.metrics.AddCount(metrics.CounterBatches, stats.Batches)
	for _, n := range stats.NulledCells {
		p.metrics.AddCount(metrics.CounterNulledCells, n)
	}

	if err != nil {
		return stats, err
	}
	p.logger.Info("conversion complete",
		"rows", stats.Rows, "bad_rows", stats.BadRows,
		"batches", stats.Batches, "elapsed", stats.Elapsed)
	return stats, nil
}

// produce is the producer task: frame records, coerce them into typed
// buffers, and emit bounded batches. Backpressure from the channel is the
// only suspension point besides source I/O.
func (p *Pipeline) produce(ctx context.Context, src io.Reader, declared schema.Schema, batches chan<- *batch.Batch, stats *Stats) error {
	scanner := csvio.NewScanner(src, p.cfg.MaxRecordBytes)

	header, err := scanner.ReadHeader()
	if err != nil {
		return err
	}

	builder, err := batch.NewBuilder(declared, header,
		batch.Limits{MaxRows: p.cfg.MaxRowsPerBatch, MaxBytes: p.cfg.MaxBatchBytes},
		p.cfg.BadRowPolicy, p.cfg.InternPoolSize, schema.CoerceOptions{})
	if err != nil {
		return err
	}
	defer func() {
		for col, n := range builder.NulledCells {
			stats.NulledCells[col] += n
		}
	}()

	badRow := func(reason error) error {
		stats.BadRows++
		p.logger.Warn("bad row skipped", "reason", reason.Error(), "bad_rows", stats.BadRows)
		if stats.BadRows > int64(p.cfg.MaxBadRows) {
			return fmt.Errorf("bad-row budget %d exhausted: %w", p.cfg.MaxBadRows, faults.ErrTooManyBadRows)
		}
		return nil
	}

	emit := func() error {
		b := builder.Flush()
		if b == nil {
			return nil
		}
		select {
		case batches <- b:
			stats.Batches++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		rec, err := scanner.Scan()
		if err != nil {
			if err == io.EOF {
				return emit()
			}
			var malformed *csvio.MalformedError
			if errors.As(err, &malformed) {
				if err := badRow(malformed); err != nil {
					return err
				}
				continue
			}
			return err
		}

		if err := builder.Append(rec); err != nil {
			var rowErr *batch.RowError
			if errors.As(err, &rowErr) {
				if err := badRow(rowErr); err != nil {
					return err
				}
				continue
			}
			return err
		}
		stats.Rows++

		if builder.Full() {
			if err := emit(); err != nil {
				return err
			}
		}
	}
}
