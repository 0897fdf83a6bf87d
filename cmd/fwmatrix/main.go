package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coffersTech/fwmatrix/internal/config"
	"github.com/coffersTech/fwmatrix/internal/engine"
	"github.com/coffersTech/fwmatrix/internal/output"
	"github.com/coffersTech/fwmatrix/internal/pkg/kvlog"
	"github.com/coffersTech/fwmatrix/internal/pkg/query"
	"github.com/coffersTech/fwmatrix/internal/pkg/security"
	"github.com/coffersTech/fwmatrix/internal/storage"
	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/kr/pretty"
)

const version = "0.2"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// Options are the command-line flags. Options without a default tag only
// override the profile when given.
type Options struct {
	Files      []string `short:"f" long:"file" value-name:"LOGFILE" description:"Log file to parse, - for stdin (repeatable)"`
	CountBytes bool     `short:"b" long:"countbytes" description:"Count bytes for each communication"`
	Verbose    []bool   `short:"v" long:"verbose" description:"Activate verbose messages (-vv for debug)"`
	Version    bool     `long:"version" description:"Show version"`

	IgnoreErrors bool `long:"ignoreerrors" description:"Skip lines missing a required field instead of aborting"`
	Permissive   bool `long:"permissive" description:"Count lines missing a required field under <missing>"`
	NoIPCheck    bool `long:"noipcheck" description:"Do not check that the first line is in the expected format"`
	StrictTokens bool `long:"strict-tokens" description:"Treat tokens without '=' as malformed lines"`

	SrcIPField     string `long:"srcipfield" value-name:"NAME" description:"Src ip address field (default: srcip)"`
	DstIPField     string `long:"dstipfield" value-name:"NAME" description:"Dst ip address field (default: dstip)"`
	DstPortField   string `long:"dstportfield" value-name:"NAME" description:"Dst port field (default: dstport)"`
	ProtoField     string `long:"protofield" value-name:"NAME" description:"Protocol field (default: proto)"`
	SentBytesField string `long:"sentbytesfield" value-name:"NAME" description:"Sent bytes field (default: sentbyte)"`
	RcvdBytesField string `long:"rcvdbytesfield" value-name:"NAME" description:"Received bytes field (default: rcvdbyte)"`

	Format  string `long:"format" choice:"kv" choice:"json" description:"Input record format (default: kv)"`
	Profile string `long:"profile" value-name:"NAME" description:"Built-in log profile (fortigate, iptables)"`
	Config  string `short:"c" long:"config" value-name:"FILE" description:"YAML profile file"`
	Filter  string `long:"filter" value-name:"QUERY" description:"Only count records matching QUERY, e.g. 'action:accept AND NOT dstport:53'"`

	Output       string `short:"o" long:"output" choice:"tree" choice:"table" choice:"json" choice:"yaml" description:"Output format (default: tree)"`
	OutFile      string `long:"out-file" value-name:"FILE" description:"Write output to FILE, compressed for .gz and .zst"`
	PrintProfile bool   `long:"print-profile" description:"Print the resolved profile as YAML and exit"`

	Anonymize   bool   `long:"anonymize" description:"Replace addresses with keyed pseudonyms"`
	AnonKeyFile string `long:"anon-key-file" value-name:"FILE" default:"fwmatrix.key" description:"Pseudonymization key file, created if missing"`

	Args struct {
		Logfiles []string `positional-arg-name:"LOGFILE"`
	} `positional-args:"yes"`
}

// usageError marks errors caused by invalid invocations.
type usageError struct {
	error
}

func (e usageError) Unwrap() error {
	return e.error
}

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	code := a.execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute parses args, runs every input and returns the exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "fwmatrix"
	parser.Usage = "[OPTIONS] -f LOGFILE"

	if _, err := parser.ParseArgs(args); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			fmt.Fprintln(a.stdout, fe.Message)
			return exitOK
		}
		fmt.Fprintf(a.stderr, "%v\n", err)
		return exitUsage
	}

	if opts.Version {
		fmt.Fprintf(a.stdout, "fwmatrix %s\n", version)
		return exitOK
	}

	err := a.run(ctx, &opts)
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ue):
		fmt.Fprintf(a.stderr, "%v\n", err)
		parser.WriteHelp(a.stderr)
		return exitUsage
	default:
		return exitError
	}
}

func (a *app) run(ctx context.Context, opts *Options) error {
	profile, err := opts.profile()
	if err != nil {
		return usageError{err}
	}
	if opts.PrintProfile {
		return profile.Save(a.stdout)
	}

	files := append(opts.Files, opts.Args.Logfiles...)
	if len(files) == 0 {
		return usageError{errors.New("no log file given")}
	}

	log := newLogger(a.stderr, len(opts.Verbose)).With("run", uuid.NewString())
	log.Debug("resolved profile", "profile", pretty.Sprint(profile))

	eopts, err := engineOptions(profile, log)
	if err != nil {
		return usageError{err}
	}
	renderer, err := output.New(output.Format(profile.Output))
	if err != nil {
		return usageError{err}
	}

	var anon *security.Pseudonymizer
	if opts.Anonymize {
		if anon, err = loadPseudonymizer(log, opts.AnonKeyFile); err != nil {
			return err
		}
	}

	w := io.Writer(a.stdout)
	var out *storage.OutputWriter
	if opts.OutFile != "" {
		if out, err = storage.CreateOutput(opts.OutFile); err != nil {
			log.Error("failed to create output", "path", opts.OutFile, "err", err)
			return err
		}
		w = out
	}

	for _, file := range files {
		if err := a.parseFile(ctx, file, eopts, anon, renderer, w); err != nil {
			log.Error("parse failed", "file", file, "err", err)
			if errors.Is(err, engine.ErrMissingField) || errors.Is(err, engine.ErrFormatMismatch) {
				log.Error("consult help message for log format options")
				log.Error("you can try the --ignoreerrors or --permissive option")
			}
			if out != nil {
				out.Abort()
			}
			return err
		}
	}

	if out != nil {
		if err := out.Close(); err != nil {
			log.Error("failed to write output", "path", opts.OutFile, "err", err)
			return err
		}
	}
	return nil
}

// parseFile runs one independent ingestion over file and renders its matrix.
func (a *app) parseFile(ctx context.Context, file string, opts engine.Options, anon *security.Pseudonymizer, r output.Renderer, w io.Writer) error {
	var lr *storage.LogReader
	var err error
	if file == storage.Stdin {
		lr, err = storage.NewLogReader(a.stdin)
	} else {
		lr, err = storage.OpenLog(file)
	}
	if err != nil {
		return err
	}
	defer lr.Close()

	opts.Logger = opts.Logger.With("file", file)
	opts.Logger.Debug("opened log", "compression", lr.Compression)

	m, _, err := engine.ReadMatrix(ctx, lr, opts)
	if err != nil {
		return err
	}
	if anon != nil {
		m = anon.Apply(m)
	}
	return r.Render(w, m)
}

// profile layers the preset, the profile file and the explicitly given flags.
func (o *Options) profile() (config.Profile, error) {
	if o.IgnoreErrors && o.Permissive {
		return config.Profile{}, errors.New("--ignoreerrors and --permissive are mutually exclusive")
	}

	p, err := config.Resolve(o.Profile, o.Config)
	if err != nil {
		return config.Profile{}, err
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&p.Fields.SrcIP, o.SrcIPField)
	set(&p.Fields.DstIP, o.DstIPField)
	set(&p.Fields.DstPort, o.DstPortField)
	set(&p.Fields.Proto, o.ProtoField)
	set(&p.Fields.SentBytes, o.SentBytesField)
	set(&p.Fields.RcvdBytes, o.RcvdBytesField)
	set(&p.Format, o.Format)
	set(&p.Filter, o.Filter)
	set(&p.Output, o.Output)

	p.CountBytes = p.CountBytes || o.CountBytes
	p.NoIPCheck = p.NoIPCheck || o.NoIPCheck
	p.StrictTokens = p.StrictTokens || o.StrictTokens
	switch {
	case o.IgnoreErrors:
		p.Missing = engine.PolicySkip.String()
	case o.Permissive:
		p.Missing = engine.PolicyPermissive.String()
	}

	return p, p.Validate()
}

// loadPseudonymizer builds the address pseudonymizer from the configured key.
func loadPseudonymizer(log *slog.Logger, keyFile string) (*security.Pseudonymizer, error) {
	key, generated, err := security.LoadKey(keyFile)
	if err != nil {
		log.Error("failed to load pseudonymization key", "err", err)
		return nil, err
	}
	if generated {
		log.Warn("generated new pseudonymization key", "path", keyFile)
	}
	return newPseudonymizer(log, key)
}

func newPseudonymizer(log *slog.Logger, key []byte) (*security.Pseudonymizer, error) {
	p, err := security.NewPseudonymizer(key, 0)
	if err != nil {
		log.Error("failed to create pseudonymizer", "err", err)
		return nil, err
	}
	return p, nil
}

func engineOptions(p config.Profile, log *slog.Logger) (engine.Options, error) {
	policy, err := p.Policy()
	if err != nil {
		return engine.Options{}, err
	}

	opts := engine.Options{
		Fields:     p.Fields,
		CountBytes: p.CountBytes,
		Policy:     policy,
		NoIPCheck:  p.NoIPCheck,
		Logger:     log,
	}

	switch p.Format {
	case config.FormatJSON:
		opts.Decode = kvlog.NewJSONDecoder().Decode
	default:
		opts.Decode = kvlog.Tokenizer{Strict: p.StrictTokens}.Tokenize
	}

	if strings.TrimSpace(p.Filter) != "" {
		f, err := query.Compile(p.Filter)
		if err != nil {
			return engine.Options{}, err
		}
		opts.Filter = f
	}
	return opts, nil
}

func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
