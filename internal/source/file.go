package source

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/comp-pricer/internal/fingerprint"
	"github.com/sells-group/comp-pricer/internal/model"
)

// FixtureEntry is one observation set in a fixture file. Empty JobTitle or
// Location match any query.
type FixtureEntry struct {
	JobTitle                   string `yaml:"job_title"`
	Location                   string `yaml:"location"`
	model.SourceObservationSet `yaml:",inline"`
}

type fixtureFile struct {
	Observations []FixtureEntry `yaml:"observations"`
}

// FileProvider serves observation sets from a YAML fixture.
type FileProvider struct {
	name    string
	typ     model.SourceType
	entries []FixtureEntry
}

// NewFileProvider creates a provider over in-memory entries.
func NewFileProvider(name string, typ model.SourceType, entries []FixtureEntry) *FileProvider {
	return &FileProvider{name: name, typ: typ, entries: entries}
}

// LoadFileProvider reads a fixture file of the form:
//
//	observations:
//	  - job_title: software engineer
//	    location: singapore
//	    kind: raw_samples
//	    raw_samples: [90000, 95000]
//	    sample_size: 2
//	    age_in_days: 10
//	    match_quality: 0.9
func LoadFileProvider(name string, typ model.SourceType, path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read fixture %s", path)
	}
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "source: parse fixture %s", path)
	}
	return NewFileProvider(name, typ, f.Observations), nil
}

// Name implements Provider.
func (p *FileProvider) Name() string { return p.name }

// Fetch implements Provider. The first entry matching the normalized title
// and location wins.
func (p *FileProvider) Fetch(ctx context.Context, q Query) (*model.SourceObservationSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title := fingerprint.Normalize(q.JobTitle)
	loc := fingerprint.Normalize(q.Location)
	for _, e := range p.entries {
		if e.JobTitle != "" && fingerprint.Normalize(e.JobTitle) != title {
			continue
		}
		if e.Location != "" && fingerprint.Normalize(e.Location) != loc {
			continue
		}
		set := e.SourceObservationSet
		set.SourceName = p.name
		if set.SourceType == "" {
			set.SourceType = p.typ
		}
		if set.SampleSize == 0 && len(set.RawSamples) > 0 {
			set.SampleSize = len(set.RawSamples)
		}
		set.RawSamples = append([]float64(nil), set.RawSamples...)
		return &set, nil
	}
	return nil, ErrNoData
}
