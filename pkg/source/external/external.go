package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/model"
)

const (
	wikipediaBaseURL = "https://en.wikipedia.org/w/rest.php/v1"
	defaultLimit     = 3
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Service answers external-search requests over the bus by querying the
// Wikipedia REST API.
type Service struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Service)

// WithBaseURL overrides the API endpoint. Used for testing.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}

func New(options ...Option) *Service {
	s := &Service{
		baseURL: wikipediaBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Register subscribes the service to the bus. The returned function
// unsubscribes it.
func (s *Service) Register(b *bus.Bus) func() {
	return b.Subscribe(model.ContextExternal, model.TypeExternalSearch, s.handleSearch)
}

func (s *Service) handleSearch(ctx context.Context, msg *model.Message) (any, error) {
	q, ok := msg.Payload.(*model.ExternalSearchQuery)
	if !ok {
		return nil, goerr.Wrap(model.ErrInvalidMessage, "unexpected external search payload")
	}

	refs, err := s.Search(ctx, q.Query, q.Limit)
	if err != nil {
		return nil, err
	}
	return &model.ExternalSearchResult{Sources: refs}, nil
}

type searchPage struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Excerpt     string `json:"excerpt"`
	Description string `json:"description"`
}

type searchResponse struct {
	Pages []searchPage `json:"pages"`
}

// Search queries the Wikipedia search endpoint and returns page references
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*model.ExternalRef, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	endpoint := fmt.Sprintf("%s/search/page?q=%s&limit=%s",
		s.baseURL, url.QueryEscape(query), strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, goerr.New("search API returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, goerr.Wrap(err, "failed to decode response")
	}

	refs := make([]*model.ExternalRef, 0, len(result.Pages))
	for _, page := range result.Pages {
		excerpt := page.Description
		if excerpt == "" {
			excerpt = tagPattern.ReplaceAllString(page.Excerpt, "")
		}
		refs = append(refs, &model.ExternalRef{
			Source:  "wikipedia",
			Title:   page.Title,
			URL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(page.Key),
			Excerpt: excerpt,
		})
	}
	return refs, nil
}
