package percolate

import (
	"context"
	"log/slog"

	"github.com/hupe1980/percolate/candidate"
	"github.com/hupe1980/percolate/codec"
	"github.com/hupe1980/percolate/mapper"
	"github.com/hupe1980/percolate/metadata"
	"github.com/hupe1980/percolate/query"
	"github.com/hupe1980/percolate/resource"
)

// ScriptEngine evaluates script clauses of stored queries during verification.
// Without one, a stored query containing a script clause never matches.
type ScriptEngine interface {
	EvalScript(ctx context.Context, s *query.Script, source metadata.Document) (bool, error)
}

// ScriptFunc adapts a function to ScriptEngine.
type ScriptFunc func(ctx context.Context, s *query.Script, source metadata.Document) (bool, error)

// EvalScript calls f.
func (f ScriptFunc) EvalScript(ctx context.Context, s *query.Script, source metadata.Document) (bool, error) {
	return f(ctx, s, source)
}

type options struct {
	fieldName           string
	mapUnmappedAsText   bool
	maxClauseCount      int
	codec               codec.Codec
	compression         codec.Compression
	resolver            query.Resolver
	scripts             ScriptEngine
	verificationWorkers int
	maxCandidateBytes   int64
	queryCacheBytes     int64
	resources           *resource.Controller
	metricsCollector    MetricsCollector
	logger              *Logger
}

// Option configures a Percolator.
type Option func(*options)

// WithFieldName sets the name of the percolator field, which is where stored
// documents hold their query. Defaults to "query".
func WithFieldName(name string) Option {
	return func(o *options) {
		o.fieldName = name
	}
}

// WithMapUnmappedFieldsAsText treats fields that stored queries reference but the
// mapping lacks as text fields instead of rejecting the query.
func WithMapUnmappedFieldsAsText(v bool) Option {
	return func(o *options) {
		o.mapUnmappedAsText = v
	}
}

// WithMaxClauseCount sets the clause limit of candidate queries. It decides whether
// the covering candidate query can be used. Defaults to 1024.
func WithMaxClauseCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxClauseCount = n
		}
	}
}

// WithCodec configures the codec used to serialize stored queries.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures the compression of serialized stored queries.
// Defaults to zstd.
func WithCompression(c codec.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithResolver sets the resolver for late-bound references in stored queries, such
// as terms lookups. Without one, such queries are rejected.
func WithResolver(r query.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithScriptEngine sets the engine that evaluates script clauses.
func WithScriptEngine(e ScriptEngine) Option {
	return func(o *options) {
		o.scripts = e
	}
}

// WithVerificationConcurrency bounds how many stored queries one request evaluates
// in parallel. Defaults to 1.
func WithVerificationConcurrency(n int) Option {
	return func(o *options) {
		o.verificationWorkers = n
	}
}

// WithMaxCandidateBytes rejects percolation requests whose documents together
// exceed n bytes. 0 means no per-request limit.
func WithMaxCandidateBytes(n int64) Option {
	return func(o *options) {
		o.maxCandidateBytes = n
	}
}

// DefaultQueryCacheBytes is the default size of the decoded query cache.
const DefaultQueryCacheBytes = 16 << 20

// WithQueryCacheBytes bounds the cache of decoded stored queries, measured in
// serialized bytes. 0 disables the cache.
func WithQueryCacheBytes(n int64) Option {
	return func(o *options) {
		if n >= 0 {
			o.queryCacheBytes = n
		}
	}
}

// WithResourceLimits shares resource limits across all requests: memory held by
// candidate documents, verification workers, admission rate and snapshot IO.
//
// Example:
//
//	p, _ := percolate.New(m, percolate.WithResourceLimits(resource.Config{
//	    MemoryLimitBytes:       64 << 20,
//	    MaxVerificationWorkers: 8,
//	    RequestsPerSecond:      500,
//	}))
func WithResourceLimits(cfg resource.Config) Option {
	return func(o *options) {
		o.resources = resource.NewController(cfg)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &percolate.BasicMetricsCollector{}
//	p, _ := percolate.New(m, percolate.WithMetricsCollector(metrics))
//	// ... use p ...
//	stats := metrics.GetStats()
//	fmt.Printf("Requests: %d, Avg latency: %dns\n", stats.PercolateCount, stats.PercolateAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		fieldName:        mapper.DefaultFieldName,
		maxClauseCount:   candidate.DefaultMaxClauseCount,
		codec:            codec.Default,
		compression:      codec.CompressionZSTD,
		queryCacheBytes:  DefaultQueryCacheBytes,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

type percolateOptions struct {
	excludeNested bool
}

// PercolateOption configures a single Percolate call.
type PercolateOption func(*percolateOptions)

// ExcludeNestedDocuments stops nested objects of the percolated documents from
// being matched on their own. Stored queries then only match whole documents.
func ExcludeNestedDocuments(v bool) PercolateOption {
	return func(o *percolateOptions) {
		o.excludeNested = v
	}
}
