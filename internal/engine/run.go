package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

const defaultMaxLineSize = 1 << 20

// ReadMatrix runs one complete ingestion over a line stream and returns
// the resulting matrix. A fatal line error stops the run immediately; the
// returned stats then describe the lines read so far. ctx is checked between
// lines.
func ReadMatrix(ctx context.Context, r io.Reader, opts Options) (*Matrix, RunStats, error) {
	agg := NewAggregator(opts)

	maxLine := opts.MaxLineSize
	if maxLine <= 0 {
		maxLine = defaultMaxLineSize
	}
	initial := 64 * 1024
	if maxLine < initial {
		initial = maxLine
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initial), maxLine)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, agg.Stats(), err
		}

		res := agg.IngestLine(scanner.Text())
		if res.Status == StatusFatal {
			return nil, agg.Stats(), res.Err
		}
		for _, an := range res.Anomalies {
			agg.log.Debug("byte accounting anomaly", "line", res.Line, "detail", an.String())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, agg.Stats(), fmt.Errorf("reading line %d: %w", agg.Line()+1, err)
	}

	m, stats := agg.Finish()
	agg.log.Info("parsed log", "stats", stats)
	return m, stats, nil
}
