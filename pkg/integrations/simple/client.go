// Package simple queries a PEP 691 simple repository for project file
// listings.
//
// Only the JSON form of the API is spoken. A listing is validated before it
// is returned: the major api-version must be 1 and files must be a list.
// Either failure is a PROTOCOL_ERROR, which the mirror treats as fatal for
// the whole run.
package simple

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/cache"
	"github.com/matzehuels/wheelhouse/pkg/dist"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/integrations"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// DefaultIndexURL is the public Python Package Index.
const DefaultIndexURL = "https://pypi.org/simple/"

// ContentTypeJSON is the PEP 691 v1 JSON media type.
const ContentTypeJSON = "application/vnd.pypi.simple.v1+json"

// Catalog is a validated project listing.
type Catalog struct {
	Name       string      `json:"name"`
	APIVersion string      `json:"api_version"`
	URL        string      `json:"url"`
	Files      []dist.File `json:"files"`
}

// Client provides access to one simple repository.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL *url.URL
}

// NewClient creates a client for the index at baseURL. Listings are cached
// in backend for ttl under keys scoped to baseURL, so one backend can serve
// several indexes.
func NewClient(baseURL string, backend cache.Cache, ttl time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultIndexURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "invalid index URL %q", baseURL)
	}
	scope := cache.Key("index", cache.Hash([]byte(u.String()))[:16]) + ":"
	return &Client{
		Client:  integrations.NewClient(cache.NewScoped(backend, scope), "simple:", ttl, map[string]string{"Accept": ContentTypeJSON}),
		baseURL: u,
	}, nil
}

// BaseURL returns the index URL with a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Fetch returns the listing for project. The name is canonicalized first.
//
// Returns:
//   - a NOT_FOUND error wrapping [integrations.ErrNotFound] for unknown projects
//   - a TRANSPORT_ERROR wrapping [integrations.ErrNetwork] once retries are exhausted
//   - a PROTOCOL_ERROR for an unsupported api-version or a malformed envelope
func (c *Client) Fetch(ctx context.Context, project string) (*Catalog, error) {
	name := requirement.Canonicalize(project)
	if name == "" {
		return nil, errors.New(errors.ErrCodeInvalidPackage, "empty project name")
	}

	var cat Catalog
	err := c.Cached(ctx, name, false, &cat, func() error {
		return c.fetch(ctx, name, &cat)
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Client) fetch(ctx context.Context, name string, cat *Catalog) error {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: url.PathEscape(name) + "/"})
	resp, err := c.Client.Fetch(ctx, endpoint.String(), nil)
	if err != nil {
		return err
	}
	parsed, err := Decode(resp.Body, resp.URL)
	if err != nil {
		return err
	}
	parsed.Name = name
	*cat = *parsed
	return nil
}

type envelope struct {
	Meta struct {
		APIVersion string `json:"api-version"`
	} `json:"meta"`
	Files json.RawMessage `json:"files"`
}

// Decode validates a JSON listing and resolves file URLs against base.
func Decode(body []byte, base *url.URL) (*Catalog, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(errors.ErrCodeProtocol, err, "listing is not valid JSON")
	}
	major, _, _ := strings.Cut(env.Meta.APIVersion, ".")
	if major != "1" {
		return nil, errors.New(errors.ErrCodeProtocol, "unsupported api-version %q, only 1.x is supported", env.Meta.APIVersion)
	}
	raw := bytes.TrimSpace(env.Files)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, errors.New(errors.ErrCodeProtocol, "expected listing to contain a list of files")
	}

	var files []dist.File
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, errors.Wrap(errors.ErrCodeProtocol, err, "malformed file entry")
	}
	for i := range files {
		if files[i].Filename == "" {
			return nil, errors.New(errors.ErrCodeProtocol, "file entry %d has no filename", i)
		}
		if base != nil && files[i].URL != "" {
			ref, err := url.Parse(files[i].URL)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeProtocol, err, "file %s has invalid url", files[i].Filename)
			}
			files[i].URL = base.ResolveReference(ref).String()
		}
	}

	cat := &Catalog{APIVersion: env.Meta.APIVersion, Files: files}
	if base != nil {
		cat.URL = base.String()
	}
	return cat, nil
}
