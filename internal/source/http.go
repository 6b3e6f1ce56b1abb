package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/resilience"
)

// maxResponseBytes bounds a source response body.
const maxResponseBytes = 4 << 20

// HTTPOptions configures an HTTPProvider.
type HTTPOptions struct {
	Name      string
	Type      model.SourceType
	URL       string
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// HTTPProvider fetches an observation set from a JSON endpoint. The query
// is sent as job_title, location and description query parameters.
type HTTPProvider struct {
	opts   HTTPOptions
	client *http.Client
}

// NewHTTPProvider creates an HTTPProvider.
func NewHTTPProvider(opts HTTPOptions) (*HTTPProvider, error) {
	if opts.Name == "" {
		return nil, eris.New("source: http provider requires a name")
	}
	if _, err := url.ParseRequestURI(opts.URL); err != nil {
		return nil, eris.Wrapf(err, "source: http provider %s: invalid url", opts.Name)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "comp-pricer/1.0"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPProvider{opts: opts, client: client}, nil
}

// Name implements Provider.
func (p *HTTPProvider) Name() string { return p.opts.Name }

// Fetch implements Provider. 429 and 5xx responses are transient; 404 means
// the source has no data for the job.
func (p *HTTPProvider) Fetch(ctx context.Context, q Query) (*model.SourceObservationSet, error) {
	u, err := url.Parse(p.opts.URL)
	if err != nil {
		return nil, eris.Wrap(err, "parse url")
	}
	params := u.Query()
	params.Set("job_title", q.JobTitle)
	params.Set("location", q.Location)
	if q.Description != "" {
		params.Set("description", q.Description)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "%s: request", p.opts.Name), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoData
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("%s: http %d", p.opts.Name, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("%s: unexpected status %d", p.opts.Name, resp.StatusCode)
	}

	var set model.SourceObservationSet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&set); err != nil {
		return nil, eris.Wrapf(err, "%s: decode response", p.opts.Name)
	}
	set.SourceName = p.opts.Name
	if set.SourceType == "" {
		set.SourceType = p.opts.Type
	}
	return &set, nil
}
