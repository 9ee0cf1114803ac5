package agents

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/settings"
)

// RemoteClient is the rate-limited, timeout-bound HTTP client shared by
// remote agents. A nil limiter means no rate limiting at all.
type RemoteClient struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	headers map[string]string
}

// NewRemoteClient builds a client from typed options.
func NewRemoteClient(opts settings.RemoteMetadataHttpOptions) (*RemoteClient, error) {
	base, err := url.Parse(opts.BaseAddress)
	if err != nil {
		return nil, errs.E(errs.InvalidArgument, "invalid remote metadata base address", err)
	}
	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var limiter *rate.Limiter
	if opts.MaxRequests != nil {
		window := time.Duration(opts.WindowSeconds) * time.Second
		if window <= 0 {
			window = time.Second
		}
		limiter = rate.NewLimiter(rate.Limit(float64(*opts.MaxRequests)/window.Seconds()), *opts.MaxRequests)
	}

	return &RemoteClient{
		base:    base,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		limiter: limiter,
		headers: opts.Headers,
	}, nil
}

// GetJSON fetches path relative to the base address and decodes the response
// into out. Transient failures (5xx, timeouts) are retried once.
func (c *RemoteClient) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.wait(ctx); err != nil {
			return err
		}
		body, retryable, err := c.doGet(ctx, path, query)
		if err == nil {
			defer body.Close()
			if err := json.NewDecoder(body).Decode(out); err != nil {
				return errs.E(errs.Unavailable, "malformed remote metadata response", err)
			}
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

func (c *RemoteClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return errs.E(errs.Cancelled, "remote metadata request cancelled", err)
		}
		return errs.E(errs.ResourceExhausted, "remote metadata rate limit", err)
	}
	return nil
}

func (c *RemoteClient) doGet(ctx context.Context, path string, query url.Values) (io.ReadCloser, bool, error) {
	u := *c.base
	u.Path, _ = url.JoinPath(u.Path, path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, errs.E(errs.Internal, "build remote metadata request", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, errs.E(errs.Cancelled, "remote metadata request cancelled", err)
		}
		return nil, true, errs.E(errs.Unavailable, "remote metadata request failed", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, false, errs.E(errs.ResourceExhausted, "remote metadata provider throttled the request")
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, false, errs.E(errs.NotFound, "remote metadata not found")
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, true, errs.E(errs.Unavailable, fmt.Sprintf("remote metadata provider returned %d", resp.StatusCode))
	default:
		resp.Body.Close()
		return nil, false, errs.E(errs.Unavailable, fmt.Sprintf("remote metadata provider returned %d", resp.StatusCode))
	}
}

// remoteSearchResult is one hit from the metadata service's search endpoint.
type remoteSearchResult struct {
	Title         string            `json:"title"`
	Summary       string            `json:"summary"`
	Tagline       string            `json:"tagline"`
	ContentRating string            `json:"content_rating"`
	Year          int               `json:"year"`
	Rating        float64           `json:"rating"`
	Genres        []string          `json:"genres"`
	ExternalIDs   map[string]string `json:"external_ids"`
}

// RemoteCatalogAgent asks the configured metadata service to fill what the
// local agents could not: summaries, ratings, genres, provider ids. It runs
// in the remote category, after every local source.
type RemoteCatalogAgent struct {
	client *RemoteClient
}

func NewRemoteCatalogAgent(client *RemoteClient) *RemoteCatalogAgent {
	return &RemoteCatalogAgent{client: client}
}

func (a *RemoteCatalogAgent) Name() string       { return "remote-catalog" }
func (a *RemoteCatalogAgent) Category() Category { return CategoryRemote }
func (a *RemoteCatalogAgent) DefaultOrder() int  { return 0 }

func (a *RemoteCatalogAgent) SupportedLibraryTypes() []database.LibraryType {
	return []database.LibraryType{
		database.LibraryMovies, database.LibraryTVShows, database.LibraryMusic,
	}
}

func (a *RemoteCatalogAgent) Extract(ctx context.Context, unit *Unit) (*Hints, error) {
	hints := NewHints()
	query := a.searchQuery(unit)
	if query == nil {
		return hints, nil
	}

	var resp struct {
		Results []remoteSearchResult `json:"results"`
	}
	err := a.client.GetJSON(ctx, "search", query, &resp)
	if errs.Is(err, errs.NotFound) {
		return hints, nil
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return hints, nil
	}

	res := resp.Results[0]
	source := a.Name()
	hints.Set(HintTitle, res.Title, source)
	hints.Set(HintSummary, res.Summary, source)
	hints.Set(HintTagline, res.Tagline, source)
	hints.Set(HintContentRating, res.ContentRating, source)
	if res.Year > 0 {
		hints.Set(HintYear, res.Year, source)
	}
	if res.Rating > 0 {
		hints.Set(HintRating, res.Rating, source)
	}
	for _, genre := range res.Genres {
		hints.AddGenre(genre)
	}
	for provider, id := range res.ExternalIDs {
		hints.AddExternalID(provider, id)
	}
	return hints, nil
}

// searchQuery derives the provider search terms from the unit's layout
// context. A nil return means the unit carries nothing worth asking about.
func (a *RemoteCatalogAgent) searchQuery(unit *Unit) url.Values {
	q := url.Values{}
	q.Set("type", string(unit.IntendedType))

	switch unit.IntendedType {
	case database.TypeMovie:
		if len(unit.Files) == 0 {
			return nil
		}
		name := baseName(unit.Files[0].Path)
		if m := yearParenRe.FindStringSubmatch(name); m != nil {
			q.Set("query", strings.TrimSpace(m[1]))
			q.Set("year", m[2])
		} else {
			q.Set("query", name)
		}
	case database.TypeShow, database.TypeEpisode:
		if unit.ShowTitle == "" {
			return nil
		}
		q.Set("query", unit.ShowTitle)
	case database.TypeTrack, database.TypeAlbumMedium:
		if unit.AlbumTitle == "" {
			return nil
		}
		q.Set("query", unit.AlbumTitle)
		if unit.ArtistName != "" {
			q.Set("artist", unit.ArtistName)
		}
	default:
		return nil
	}
	return q
}
