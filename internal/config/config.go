// Package config resolves the parse profile of a run from built-in presets
// and YAML profile files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/coffersTech/fwmatrix/internal/engine"
	"github.com/coffersTech/fwmatrix/internal/model"
	"gopkg.in/yaml.v3"
)

// Input formats.
const (
	FormatKV   = "kv"
	FormatJSON = "json"
)

// Profile describes how a log source is parsed.
type Profile struct {
	Name         string       `yaml:"name,omitempty"`
	Fields       model.Fields `yaml:"fields"`
	CountBytes   bool         `yaml:"countbytes"`
	Missing      string       `yaml:"missing"` // strict, skip or permissive
	NoIPCheck    bool         `yaml:"noipcheck"`
	StrictTokens bool         `yaml:"strict_tokens"`
	Format       string       `yaml:"format"` // kv or json
	Filter       string       `yaml:"filter,omitempty"`
	Output       string       `yaml:"output"`
}

// Default returns the Fortigate profile.
func Default() Profile {
	return Profile{
		Name:    "fortigate",
		Fields:  model.DefaultFields(),
		Missing: engine.PolicyStrict.String(),
		Format:  FormatKV,
		Output:  "tree",
	}
}

var presets = map[string]Profile{
	"fortigate": Default(),
	"iptables": {
		Name: "iptables",
		Fields: model.Fields{
			SrcIP:   "SRC",
			DstIP:   "DST",
			DstPort: "DPT",
			Proto:   "PROTO",
		},
		Missing: engine.PolicySkip.String(),
		Format:  FormatKV,
		Output:  "tree",
	},
}

// Presets returns the names of the built-in profiles.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the built-in profile called name.
func Preset(name string) (Profile, error) {
	p, ok := presets[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(Presets(), ", "))
	}
	p.Fields = p.Fields.Merge(model.DefaultFields())
	return p, nil
}

// fileProfile mirrors Profile with optional members so that a file only
// overrides what it sets.
type fileProfile struct {
	Name   *string `yaml:"name"`
	Fields struct {
		SrcIP     *string `yaml:"srcip"`
		DstIP     *string `yaml:"dstip"`
		DstPort   *string `yaml:"dstport"`
		Proto     *string `yaml:"proto"`
		SentBytes *string `yaml:"sentbytes"`
		RcvdBytes *string `yaml:"rcvdbytes"`
	} `yaml:"fields"`
	CountBytes   *bool   `yaml:"countbytes"`
	Missing      *string `yaml:"missing"`
	NoIPCheck    *bool   `yaml:"noipcheck"`
	StrictTokens *bool   `yaml:"strict_tokens"`
	Format       *string `yaml:"format"`
	Filter       *string `yaml:"filter"`
	Output       *string `yaml:"output"`
}

func (fp *fileProfile) applyTo(p *Profile) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&p.Name, fp.Name)
	setString(&p.Fields.SrcIP, fp.Fields.SrcIP)
	setString(&p.Fields.DstIP, fp.Fields.DstIP)
	setString(&p.Fields.DstPort, fp.Fields.DstPort)
	setString(&p.Fields.Proto, fp.Fields.Proto)
	setString(&p.Fields.SentBytes, fp.Fields.SentBytes)
	setString(&p.Fields.RcvdBytes, fp.Fields.RcvdBytes)
	setBool(&p.CountBytes, fp.CountBytes)
	setString(&p.Missing, fp.Missing)
	setBool(&p.NoIPCheck, fp.NoIPCheck)
	setBool(&p.StrictTokens, fp.StrictTokens)
	setString(&p.Format, fp.Format)
	setString(&p.Filter, fp.Filter)
	setString(&p.Output, fp.Output)
}

// Decode reads a YAML profile from r on top of base. Unknown keys are errors.
func Decode(r io.Reader, base Profile) (Profile, error) {
	var fp fileProfile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fp); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, err
	}
	fp.applyTo(&base)
	return base, base.Validate()
}

// Load reads the profile file at path on top of base.
func Load(path string, base Profile) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	p, err := Decode(bytes.NewReader(data), base)
	if err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Resolve builds a profile from a preset name and an optional file.
// An empty preset selects the default profile.
func Resolve(preset, path string) (Profile, error) {
	p := Default()
	if preset != "" {
		var err error
		if p, err = Preset(preset); err != nil {
			return Profile{}, err
		}
	}
	if path != "" {
		return Load(path, p)
	}
	return p, nil
}

// Policy returns the parsed missing-field policy.
func (p Profile) Policy() (engine.MissingPolicy, error) {
	return engine.ParsePolicy(p.Missing)
}

// Validate checks the profile for contradictions and unknown values.
func (p Profile) Validate() error {
	if _, err := p.Policy(); err != nil {
		return err
	}
	switch p.Format {
	case FormatKV, FormatJSON:
	default:
		return fmt.Errorf("unknown input format %q", p.Format)
	}
	return p.Fields.Validate(p.CountBytes)
}

// Save writes p as YAML to w.
func (p Profile) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}
