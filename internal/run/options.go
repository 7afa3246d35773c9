package run

import (
	"net/http"

	"github.com/specialistvlad/llmgrid/internal/events"
	"github.com/specialistvlad/llmgrid/internal/httpclient"
	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/specialistvlad/llmgrid/internal/retry"
	"github.com/specialistvlad/llmgrid/internal/search"
	"github.com/specialistvlad/llmgrid/internal/store"
)

// DefaultWorkers bounds concurrency when no worker count is given.
const DefaultWorkers = 10

type options struct {
	workers   int
	store     store.Store
	providers *provider.Registry
	search    *search.Registry
	http      *http.Client
	retry     retry.Policy
	noCache   bool
	publisher events.Publisher
}

// Option configures a Runner.
type Option func(*options)

// WithWorkers bounds concurrent records, units per scope and branches per
// map.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithStore enables dataset loading and the block cache.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

func WithProviders(r *provider.Registry) Option {
	return func(o *options) { o.providers = r }
}

func WithSearch(r *search.Registry) Option {
	return func(o *options) { o.search = r }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.http = c }
}

// WithRetryPolicy sets the policy that block-level retry overrides apply
// to.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) { o.retry = p }
}

// WithNoCache bypasses cache reads and writes.
func WithNoCache(noCache bool) Option {
	return func(o *options) { o.noCache = noCache }
}

func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func defaultOptions() options {
	return options{
		workers:   DefaultWorkers,
		providers: provider.NewRegistry(),
		search:    search.NewRegistry(),
		http:      httpclient.New(0),
		retry:     retry.DefaultPolicy(),
		publisher: events.Noop{},
	}
}
