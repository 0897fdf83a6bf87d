package engine

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/coffersTech/fwmatrix/internal/model"
	"github.com/coffersTech/fwmatrix/internal/pkg/kvlog"
)

// MissingPolicy decides what happens to a line without a required field.
// The policy is fixed for the whole run.
type MissingPolicy int

const (
	// PolicyStrict aborts the run.
	PolicyStrict MissingPolicy = iota
	// PolicySkip drops the line and continues.
	PolicySkip
	// PolicyPermissive substitutes MissingValue and aggregates the line.
	PolicyPermissive
)

func (p MissingPolicy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicySkip:
		return "skip"
	case PolicyPermissive:
		return "permissive"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a policy name to a MissingPolicy.
func ParsePolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return PolicyStrict, nil
	case "skip", "ignore", "ignoreerrors":
		return PolicySkip, nil
	case "permissive":
		return PolicyPermissive, nil
	}
	return PolicyStrict, fmt.Errorf("unknown missing-field policy %q", s)
}

// RecordMatcher selects the records that are aggregated.
type RecordMatcher interface {
	Match(rec kvlog.Record) bool
}

// Options configures an Aggregator.
type Options struct {
	Fields     model.Fields
	CountBytes bool
	Policy     MissingPolicy

	// NoIPCheck disables the first-line format check.
	NoIPCheck bool

	// Decode converts raw lines to records. Defaults to kvlog.Tokenize.
	Decode kvlog.DecodeFunc

	// Filter drops non-matching records before aggregation. Optional.
	Filter RecordMatcher

	// MaxLineSize bounds a single input line in ReadMatrix. Default 1 MiB.
	MaxLineSize int

	Logger *slog.Logger
}

// State is the lifecycle state of an Aggregator.
type State int

const (
	StateIdle State = iota
	StateIngesting
)

func (s State) String() string {
	if s == StateIngesting {
		return "ingesting"
	}
	return "idle"
}

// Status classifies the outcome of one ingested line.
type Status int

const (
	StatusIngested Status = iota
	StatusBlank
	StatusFiltered
	StatusSkipped
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusIngested:
		return "ingested"
	case StatusBlank:
		return "blank"
	case StatusFiltered:
		return "filtered"
	case StatusSkipped:
		return "skipped"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Anomaly is a recoverable byte accounting problem on one line.
// The affected value contributed zero.
type Anomaly struct {
	Field   string
	Value   string
	Missing bool
}

func (a Anomaly) String() string {
	if a.Missing {
		return fmt.Sprintf("field %q missing", a.Field)
	}
	return fmt.Sprintf("field %q has non-numeric value %q", a.Field, a.Value)
}

// IngestResult describes what happened to one line.
type IngestResult struct {
	Line      int
	Status    Status
	Tuple     Tuple
	Anomalies []Anomaly
	// Err is set for StatusSkipped and StatusFatal.
	Err error
}

// Aggregator folds records into a Matrix, one line at a time.
// It is single-threaded: one Aggregator serves one run at a time.
type Aggregator struct {
	opts   Options
	log    *slog.Logger
	state  State
	matrix *Matrix
	stats  RunStats
	line   int

	// checked is set once the format check has seen a non-blank line.
	checked bool
}

// NewAggregator creates an idle Aggregator.
func NewAggregator(opts Options) *Aggregator {
	if opts.Decode == nil {
		opts.Decode = func(line string) (kvlog.Record, error) {
			return kvlog.Tokenize(line), nil
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Aggregator{opts: opts, log: opts.Logger}
}

// State returns the current lifecycle state.
func (a *Aggregator) State() State {
	return a.state
}

// Line returns the number of the last line seen in the current run.
func (a *Aggregator) Line() int {
	return a.line
}

// Stats returns the statistics of the current or last run.
func (a *Aggregator) Stats() RunStats {
	s := a.stats
	if a.matrix != nil {
		s.Tuples = a.matrix.Len()
		s.Sources = a.matrix.Sources()
	}
	return s
}

// IngestLine decodes and ingests one raw line.
//
// Whitespace-only lines are counted as StatusBlank under every policy; they
// never raise a MissingFieldError, even with PolicyStrict. The format check
// examines the first non-blank line of a run, not literally line 1, so
// leading blank lines do not bypass it. NoIPCheck disables it.
func (a *Aggregator) IngestLine(raw string) IngestResult {
	line := a.next()

	if strings.TrimSpace(raw) == "" {
		a.stats.Blank++
		return IngestResult{Line: line, Status: StatusBlank}
	}

	if !a.checked {
		a.checked = true
		if !a.opts.NoIPCheck {
			if err := a.checkFormat(line, raw); err != nil {
				return a.fatal(IngestResult{Line: line}, err)
			}
		}
	}

	rec, err := a.opts.Decode(raw)
	if err != nil {
		return a.reject(IngestResult{Line: line}, &LineError{Line: line, Err: err})
	}
	return a.ingest(line, rec)
}

// Ingest folds an already decoded record into the matrix as the next line.
func (a *Aggregator) Ingest(rec kvlog.Record) IngestResult {
	return a.ingest(a.next(), rec)
}

// Finish ends the run and hands over the matrix. The Aggregator returns to
// idle; the next ingest starts a new, independent run.
func (a *Aggregator) Finish() (*Matrix, RunStats) {
	stats := a.Stats()
	m := a.matrix
	if m == nil {
		m = NewMatrix(a.opts.CountBytes)
	}
	a.matrix = nil
	a.state = StateIdle
	return m, stats
}

func (a *Aggregator) next() int {
	if a.state == StateIdle {
		a.state = StateIngesting
		a.matrix = NewMatrix(a.opts.CountBytes)
		a.stats = RunStats{}
		a.line = 0
		a.checked = false
	}
	a.line++
	a.stats.Lines++
	return a.line
}

func (a *Aggregator) checkFormat(line int, raw string) error {
	f := a.opts.Fields
	if strings.Contains(raw, f.SrcIP) && strings.Contains(raw, f.DstIP) {
		return nil
	}
	return &FormatMismatchError{Line: line, Fields: []string{f.SrcIP, f.DstIP}}
}

func (a *Aggregator) ingest(line int, rec kvlog.Record) IngestResult {
	res := IngestResult{Line: line}

	if a.opts.Filter != nil && !a.opts.Filter.Match(rec) {
		a.stats.Filtered++
		res.Status = StatusFiltered
		return res
	}

	f := a.opts.Fields
	var missing string
	lookup := func(name string) string {
		if v, ok := rec[name]; ok {
			return v
		}
		if missing == "" {
			missing = name
		}
		return MissingValue
	}

	t := Tuple{
		SrcIP:   lookup(f.SrcIP),
		DstIP:   lookup(f.DstIP),
		DstPort: lookup(f.DstPort),
		Proto:   NormalizeProtocol(lookup(f.Proto)),
	}
	res.Tuple = t

	if missing != "" && a.opts.Policy != PolicyPermissive {
		return a.reject(res, &MissingFieldError{Line: line, Field: missing})
	}

	var sent, rcvd uint64
	if a.opts.CountBytes {
		sent = a.parseBytes(&res, rec, f.SentBytes)
		rcvd = a.parseBytes(&res, rec, f.RcvdBytes)
	}

	g := a.matrix.Add(t, sent, rcvd)
	if g&GrewSource != 0 {
		a.log.Debug("found new srcip", "srcip", t.SrcIP, "line", line)
	}
	if g&GrewDestination != 0 {
		a.log.Debug("found new dstip", "dstip", t.DstIP, "srcip", t.SrcIP)
	}

	a.stats.Ingested++
	res.Status = StatusIngested
	return res
}

// parseBytes returns the counter value of field, or zero with an anomaly.
func (a *Aggregator) parseBytes(res *IngestResult, rec kvlog.Record, field string) uint64 {
	v, ok := rec[field]
	if !ok {
		res.Anomalies = append(res.Anomalies, Anomaly{Field: field, Missing: true})
		a.stats.ByteAnomalies++
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		res.Anomalies = append(res.Anomalies, Anomaly{Field: field, Value: v})
		a.stats.ByteAnomalies++
		return 0
	}
	return n
}

// reject applies the missing-field policy to a malformed line.
func (a *Aggregator) reject(res IngestResult, err error) IngestResult {
	if a.opts.Policy == PolicyStrict {
		return a.fatal(res, err)
	}
	a.stats.Skipped++
	a.log.Warn("skipping line", "line", res.Line, "err", err)
	res.Status = StatusSkipped
	res.Err = err
	return res
}

// fatal aborts the run: the partial matrix is discarded.
func (a *Aggregator) fatal(res IngestResult, err error) IngestResult {
	a.stats.Tuples = a.matrix.Len()
	a.stats.Sources = a.matrix.Sources()
	a.matrix = nil
	a.state = StateIdle
	res.Status = StatusFatal
	res.Err = err
	return res
}
