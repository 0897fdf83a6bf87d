package engine

import "log/slog"

// RunStats summarizes one ingestion run.
type RunStats struct {
	Lines         int
	Blank         int
	Ingested      int
	Skipped       int
	Filtered      int
	ByteAnomalies int
	Tuples        int
	Sources       int
}

// LogValue implements slog.LogValuer.
func (s RunStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("lines", s.Lines),
		slog.Int("blank", s.Blank),
		slog.Int("ingested", s.Ingested),
		slog.Int("skipped", s.Skipped),
		slog.Int("filtered", s.Filtered),
		slog.Int("byte_anomalies", s.ByteAnomalies),
		slog.Int("tuples", s.Tuples),
		slog.Int("sources", s.Sources),
	)
}
