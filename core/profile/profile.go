// Package profile loads the deployment profile: which tracker data elements feed which
// category, and the standards each category is held to.
package profile

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/event"
	"github.com/trezcool/ukaguzi/core/standard"
)

type Programs struct {
	Resources string `yaml:"resources"`
	Visits    string `yaml:"visits"`
}

type Profile struct {
	Programs   Programs            `yaml:"programs"`
	Categories []string            `yaml:"categories"`
	Fields     event.FieldMap      `yaml:"fields"`
	Standards  []standard.Standard `yaml:"standards"`
}

// Load reads and validates the profile at path.
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening profile")
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode reads and validates a YAML profile.
func Decode(r io.Reader) (*Profile, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, errors.Wrap(err, "reading profile")
	}
	dec := yaml.NewDecoder(&buf)
	dec.KnownFields(true)

	p := new(Profile)
	if err := dec.Decode(p); err != nil {
		return nil, errors.Wrap(err, "decoding profile")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that the profile is consistent.
func (p *Profile) Validate() error {
	var flds []core.FieldError
	if p.Programs.Resources == "" {
		flds = append(flds, core.FieldError{Field: "programs.resources", Error: "this field is required"})
	}
	if p.Programs.Visits == "" {
		flds = append(flds, core.FieldError{Field: "programs.visits", Error: "this field is required"})
	}
	if len(p.Fields) == 0 {
		flds = append(flds, core.FieldError{Field: "fields", Error: "at least one field is required"})
	}

	known := make(map[string]bool, len(p.Categories))
	for _, c := range p.Categories {
		known[c] = true
	}
	for de, c := range p.Fields {
		if !known[c] {
			flds = append(flds, core.FieldError{Field: "fields." + de, Error: "unknown category " + c})
		}
	}
	for _, s := range p.Standards {
		switch {
		case s.Name == "":
			flds = append(flds, core.FieldError{Field: "standards", Error: "standard name is required"})
		case !known[s.Category]:
			flds = append(flds, core.FieldError{Field: "standards." + s.Name, Error: "unknown category " + s.Category})
		}
	}

	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid profile"), flds...)
	}
	return nil
}
