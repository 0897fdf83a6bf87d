package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/coffersTech/fwmatrix/internal/model"
	"github.com/coffersTech/fwmatrix/internal/pkg/kvlog"
)

func testOptions() Options {
	return Options{Fields: model.DefaultFields()}
}

func ingestAll(t *testing.T, agg *Aggregator, lines ...string) []IngestResult {
	t.Helper()
	results := make([]IngestResult, 0, len(lines))
	for _, l := range lines {
		results = append(results, agg.IngestLine(l))
	}
	return results
}

func TestAggregatorCountsDistinctTuples(t *testing.T) {
	agg := NewAggregator(testOptions())
	lines := []string{
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=443 proto=6",
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=443 proto=6",
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=443 proto=17",
		"srcip=10.0.0.1 dstip=10.0.0.3 dstport=443 proto=6",
		"srcip=10.0.0.4 dstip=10.0.0.2 dstport=80 proto=6",
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=443 proto=6",
	}
	for _, res := range ingestAll(t, agg, lines...) {
		if res.Status != StatusIngested {
			t.Fatalf("line %d: status %v, err %v", res.Line, res.Status, res.Err)
		}
	}

	m, stats := agg.Finish()
	if m.Len() != 4 {
		t.Fatalf("expected 4 tuples, got %d", m.Len())
	}

	tests := []struct {
		tuple Tuple
		count uint64
	}{
		{Tuple{"10.0.0.1", "10.0.0.2", "443", "TCP"}, 3},
		{Tuple{"10.0.0.1", "10.0.0.2", "443", "UDP"}, 1},
		{Tuple{"10.0.0.1", "10.0.0.3", "443", "TCP"}, 1},
		{Tuple{"10.0.0.4", "10.0.0.2", "80", "TCP"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.tuple.String(), func(t *testing.T) {
			c, ok := m.Lookup(tt.tuple)
			if !ok {
				t.Fatalf("tuple not found")
			}
			if c.Count != tt.count {
				t.Errorf("count = %d, want %d", c.Count, tt.count)
			}
		})
	}

	if stats.Lines != 6 || stats.Ingested != 6 || stats.Tuples != 4 || stats.Sources != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestAggregatorQuotedValue(t *testing.T) {
	opts := testOptions()
	opts.Fields.DstPort = "dport"
	agg := NewAggregator(opts)

	res := agg.IngestLine(`srcip=10.0.0.1 dstip=8.8.8.8 dport=53 proto=17 dstcountry="United States"`)
	if res.Status != StatusIngested {
		t.Fatalf("status %v, err %v", res.Status, res.Err)
	}

	m, _ := agg.Finish()
	c, ok := m.Lookup(Tuple{SrcIP: "10.0.0.1", DstIP: "8.8.8.8", DstPort: "53", Proto: "UDP"})
	if !ok || c.Count != 1 {
		t.Errorf("expected count 1 for UDP/53 tuple, got %+v (found=%v)", c, ok)
	}
}

func TestAggregatorByteAccumulation(t *testing.T) {
	opts := testOptions()
	opts.CountBytes = true
	agg := NewAggregator(opts)

	ingestAll(t, agg,
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=22 proto=6 sentbyte=10 rcvdbyte=1",
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=22 proto=6 sentbyte=20 rcvdbyte=2",
	)

	m, stats := agg.Finish()
	if !m.CountBytes() {
		t.Error("matrix should count bytes")
	}
	c, _ := m.Lookup(Tuple{"10.0.0.1", "10.0.0.2", "22", "TCP"})
	if c.Count != 2 || c.SentBytes != 30 || c.RcvdBytes != 3 {
		t.Errorf("unexpected counter: %+v", c)
	}
	if stats.ByteAnomalies != 0 {
		t.Errorf("unexpected anomalies: %d", stats.ByteAnomalies)
	}
}

func TestAggregatorMalformedBytes(t *testing.T) {
	opts := testOptions()
	opts.CountBytes = true
	agg := NewAggregator(opts)

	results := ingestAll(t, agg,
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=22 proto=6 sentbyte=10 rcvdbyte=5",
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=22 proto=6 sentbyte=notanumber rcvdbyte=5",
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=22 proto=6 sentbyte=-3",
	)

	if results[1].Status != StatusIngested || len(results[1].Anomalies) != 1 {
		t.Fatalf("line 2: status %v anomalies %v", results[1].Status, results[1].Anomalies)
	}
	if an := results[1].Anomalies[0]; an.Field != "sentbyte" || an.Value != "notanumber" || an.Missing {
		t.Errorf("unexpected anomaly: %+v", an)
	}
	if len(results[2].Anomalies) != 2 {
		t.Errorf("line 3: expected 2 anomalies, got %v", results[2].Anomalies)
	}

	m, stats := agg.Finish()
	c, _ := m.Lookup(Tuple{"10.0.0.1", "10.0.0.2", "22", "TCP"})
	if c.Count != 3 || c.SentBytes != 10 || c.RcvdBytes != 10 {
		t.Errorf("unexpected counter: %+v", c)
	}
	if stats.ByteAnomalies != 3 {
		t.Errorf("ByteAnomalies = %d, want 3", stats.ByteAnomalies)
	}
}

func TestAggregatorBytesIgnoredWhenDisabled(t *testing.T) {
	agg := NewAggregator(testOptions())
	res := agg.IngestLine("srcip=a dstip=b dstport=1 proto=6 sentbyte=oops")
	if len(res.Anomalies) != 0 {
		t.Errorf("anomalies reported without byte counting: %v", res.Anomalies)
	}
	m, _ := agg.Finish()
	if m.CountBytes() {
		t.Error("matrix should not count bytes")
	}
}

const missingDstLines = "srcip=10.0.0.1 dstip=10.0.0.2 dstport=53 proto=17\n" +
	"srcip=10.0.0.1 dstport=53 proto=17\n" +
	"srcip=10.0.0.1 dstip=10.0.0.2 dstport=53 proto=17\n"

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func TestAggregatorStrictMissingField(t *testing.T) {
	agg := NewAggregator(testOptions())

	results := ingestAll(t, agg, splitLines(missingDstLines)[:2]...)
	res := results[1]
	if res.Status != StatusFatal {
		t.Fatalf("expected fatal status, got %v", res.Status)
	}

	var mfe *MissingFieldError
	if !errors.As(res.Err, &mfe) {
		t.Fatalf("expected MissingFieldError, got %v", res.Err)
	}
	if mfe.Line != 2 || mfe.Field != "dstip" {
		t.Errorf("unexpected error detail: %+v", mfe)
	}
	if !errors.Is(res.Err, ErrMissingField) {
		t.Error("error should match ErrMissingField")
	}
	if agg.State() != StateIdle {
		t.Errorf("aggregator should be idle after a fatal error, got %v", agg.State())
	}
	if s := agg.Stats(); s.Ingested != 1 || s.Tuples != 1 {
		t.Errorf("unexpected stats after abort: %+v", s)
	}
}

func TestAggregatorSkipMissingField(t *testing.T) {
	opts := testOptions()
	opts.Policy = PolicySkip
	agg := NewAggregator(opts)

	results := ingestAll(t, agg, splitLines(missingDstLines)...)
	if results[1].Status != StatusSkipped || !errors.Is(results[1].Err, ErrMissingField) {
		t.Fatalf("line 2: status %v err %v", results[1].Status, results[1].Err)
	}

	m, stats := agg.Finish()
	c, _ := m.Lookup(Tuple{"10.0.0.1", "10.0.0.2", "53", "UDP"})
	if c.Count != 2 {
		t.Errorf("count = %d, want 2", c.Count)
	}
	if m.Len() != 1 || stats.Skipped != 1 {
		t.Errorf("Len = %d, Skipped = %d", m.Len(), stats.Skipped)
	}
}

func TestAggregatorPermissiveMissingField(t *testing.T) {
	opts := testOptions()
	opts.Policy = PolicyPermissive
	agg := NewAggregator(opts)

	for _, res := range ingestAll(t, agg, splitLines(missingDstLines)...) {
		if res.Status != StatusIngested {
			t.Fatalf("line %d: status %v err %v", res.Line, res.Status, res.Err)
		}
	}

	m, _ := agg.Finish()
	c, ok := m.Lookup(Tuple{"10.0.0.1", MissingValue, "53", "UDP"})
	if !ok || c.Count != 1 {
		t.Errorf("expected sentinel tuple with count 1, got %+v (found=%v)", c, ok)
	}
	if m.Len() != 2 {
		t.Errorf("expected 2 tuples, got %d", m.Len())
	}
}

func TestAggregatorPermissiveMissingProto(t *testing.T) {
	opts := testOptions()
	opts.Policy = PolicyPermissive
	agg := NewAggregator(opts)
	agg.IngestLine("srcip=1.1.1.1 dstip=2.2.2.2 dstport=80")

	m, _ := agg.Finish()
	if _, ok := m.Lookup(Tuple{"1.1.1.1", "2.2.2.2", "80", MissingValue}); !ok {
		t.Error("missing proto should be keyed by the sentinel")
	}
}

func TestAggregatorFormatCheck(t *testing.T) {
	agg := NewAggregator(testOptions())
	res := agg.IngestLine("SRC=10.0.0.1 DST=10.0.0.2 DPT=22 PROTO=TCP")
	if res.Status != StatusFatal {
		t.Fatalf("expected fatal status, got %v", res.Status)
	}
	var fme *FormatMismatchError
	if !errors.As(res.Err, &fme) || fme.Line != 1 {
		t.Fatalf("expected FormatMismatchError on line 1, got %v", res.Err)
	}
	if !errors.Is(res.Err, ErrFormatMismatch) {
		t.Error("error should match ErrFormatMismatch")
	}

	// A policy never turns a format mismatch into a skip.
	opts := testOptions()
	opts.Policy = PolicySkip
	agg = NewAggregator(opts)
	if res := agg.IngestLine("SRC=10.0.0.1 DST=10.0.0.2"); res.Status != StatusFatal {
		t.Errorf("expected fatal status with PolicySkip, got %v", res.Status)
	}
}

func TestAggregatorFormatCheckOnlyFirstLine(t *testing.T) {
	opts := testOptions()
	opts.Policy = PolicySkip
	agg := NewAggregator(opts)

	results := ingestAll(t, agg,
		"",
		"srcip=10.0.0.1 dstip=10.0.0.2 dstport=22 proto=6",
		"SRC=10.0.0.1 DST=10.0.0.2",
	)
	if results[0].Status != StatusBlank {
		t.Errorf("line 1: status %v", results[0].Status)
	}
	if results[1].Status != StatusIngested {
		t.Errorf("line 2: status %v err %v", results[1].Status, results[1].Err)
	}
	if results[2].Status != StatusSkipped {
		t.Errorf("line 3: status %v", results[2].Status)
	}
}

func TestAggregatorStrictBlankLines(t *testing.T) {
	agg := NewAggregator(testOptions())

	results := ingestAll(t, agg,
		"",
		"  \t",
		"SRC=10.0.0.1 DST=10.0.0.2",
	)
	for _, res := range results[:2] {
		if res.Status != StatusBlank || res.Err != nil {
			t.Errorf("line %d: status %v err %v", res.Line, res.Status, res.Err)
		}
	}
	var fme *FormatMismatchError
	if !errors.As(results[2].Err, &fme) || fme.Line != 3 {
		t.Errorf("expected format check on line 3, got %v", results[2].Err)
	}
}

func TestAggregatorNoIPCheck(t *testing.T) {
	opts := testOptions()
	opts.NoIPCheck = true
	opts.Policy = PolicySkip
	agg := NewAggregator(opts)

	res := agg.IngestLine("SRC=10.0.0.1 DST=10.0.0.2")
	if res.Status != StatusSkipped {
		t.Errorf("expected skipped status, got %v", res.Status)
	}
}

func TestAggregatorDecodeError(t *testing.T) {
	opts := testOptions()
	tok := kvlog.Tokenizer{Strict: true}
	opts.Decode = tok.Tokenize
	agg := NewAggregator(opts)

	res := agg.IngestLine("srcip=1.1.1.1 dstip=2.2.2.2 junk")
	if res.Status != StatusFatal {
		t.Fatalf("expected fatal status, got %v", res.Status)
	}
	var le *LineError
	if !errors.As(res.Err, &le) || le.Line != 1 {
		t.Fatalf("expected LineError on line 1, got %v", res.Err)
	}
	var te *kvlog.TokenError
	if !errors.As(res.Err, &te) || te.Token != "junk" {
		t.Errorf("expected wrapped TokenError, got %v", res.Err)
	}
}

type actionFilter string

func (f actionFilter) Match(rec kvlog.Record) bool {
	return rec["action"] == string(f)
}

func TestAggregatorFilter(t *testing.T) {
	opts := testOptions()
	opts.Filter = actionFilter("deny")
	agg := NewAggregator(opts)

	results := ingestAll(t, agg,
		"srcip=1.1.1.1 dstip=2.2.2.2 dstport=80 proto=6 action=deny",
		"srcip=1.1.1.1 dstip=2.2.2.2 dstport=80 proto=6 action=accept",
		"srcip=1.1.1.1 dstport=80 proto=6 action=accept",
	)
	if results[1].Status != StatusFiltered || results[2].Status != StatusFiltered {
		t.Errorf("unexpected statuses: %v, %v", results[1].Status, results[2].Status)
	}

	m, stats := agg.Finish()
	if m.Len() != 1 || stats.Filtered != 2 || stats.Ingested != 1 {
		t.Errorf("Len = %d, stats = %+v", m.Len(), stats)
	}
}

func TestAggregatorRunsAreIndependent(t *testing.T) {
	agg := NewAggregator(testOptions())
	agg.IngestLine("srcip=1.1.1.1 dstip=2.2.2.2 dstport=80 proto=6")
	first, _ := agg.Finish()

	if agg.State() != StateIdle {
		t.Fatalf("expected idle after Finish, got %v", agg.State())
	}

	res := agg.IngestLine("srcip=3.3.3.3 dstip=4.4.4.4 dstport=80 proto=6")
	if res.Line != 1 || agg.State() != StateIngesting {
		t.Errorf("second run should restart at line 1, got line %d state %v", res.Line, agg.State())
	}
	second, _ := agg.Finish()

	if first.Len() != 1 || second.Len() != 1 {
		t.Errorf("runs share state: %d, %d", first.Len(), second.Len())
	}
	if _, ok := second.Lookup(Tuple{"1.1.1.1", "2.2.2.2", "80", "TCP"}); ok {
		t.Error("second run sees tuple from first run")
	}
}

func TestAggregatorIngestRecord(t *testing.T) {
	agg := NewAggregator(testOptions())
	for i := 0; i < 3; i++ {
		res := agg.Ingest(kvlog.Record{"srcip": "a", "dstip": "b", "dstport": fmt.Sprint(i % 2), "proto": "1"})
		if res.Line != i+1 {
			t.Errorf("record %d numbered %d", i, res.Line)
		}
	}
	m, _ := agg.Finish()
	c, _ := m.Lookup(Tuple{"a", "b", "0", "ICMP"})
	if c.Count != 2 || m.Len() != 2 {
		t.Errorf("count = %d, Len = %d", c.Count, m.Len())
	}
}

func TestFinishWithoutInput(t *testing.T) {
	opts := testOptions()
	opts.CountBytes = true
	m, stats := NewAggregator(opts).Finish()
	if m == nil || m.Len() != 0 || !m.CountBytes() {
		t.Errorf("expected empty byte-counting matrix, got %+v", m)
	}
	if stats.Lines != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
