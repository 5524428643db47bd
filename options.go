package linkdb

import (
	"log/slog"
	"runtime"

	"github.com/hupe1980/linkdb/codec"
	"github.com/hupe1980/linkdb/internal/compress"
	"github.com/hupe1980/linkdb/internal/fs"
)

// Compression selects the codec for page directory files.
type Compression = compress.Type

// Supported directory compressions.
const (
	CompressionNone   = compress.None
	CompressionLZ4    = compress.LZ4
	CompressionZSTD   = compress.ZSTD
	CompressionSnappy = compress.Snappy
)

type options struct {
	logger          *Logger
	fs              fs.FileSystem
	codec           codec.Codec
	codecSet        bool
	registry        *Registry
	compression     Compression
	compressionSet  bool
	blockCacheSize  int64
	metrics         MetricsObserver
	backupRate      int64
	loadConcurrency int
}

// Option configures Open and Create.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:          NoopLogger(),
		fs:              fs.Default,
		codec:           codec.Default,
		compression:     CompressionNone,
		metrics:         NoopMetricsObserver{},
		loadConcurrency: runtime.GOMAXPROCS(0),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	return o
}

// WithLogger sets the logger. Default discards everything.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithFileSystem replaces the file system used for all database files.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithCodec sets the item codec. The codec name is persisted at creation.
// On Open the persisted name is resolved through codec.Lookup unless this
// option is given, in which case the names must match.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
		o.codecSet = true
	}
}

// WithRegistry sets the item type registry. Types created through GetLink or
// CreateChild are registered automatically; items that are only ever loaded
// after a reopen must be registered up front.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithCompression sets the page directory compression for a new database.
// On Open the persisted setting wins unless this option is given, in which
// case directories are rewritten with the new codec on the next save.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
		o.compressionSet = true
	}
}

// WithBlockCacheSize enables a shared read cache for block contents, bounded
// to bytes. Zero disables it.
func WithBlockCacheSize(bytes int64) Option {
	return func(o *options) {
		o.blockCacheSize = bytes
	}
}

// WithMetricsObserver sets the metrics observer.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(o *options) {
		if observer == nil {
			observer = NoopMetricsObserver{}
		}
		o.metrics = observer
	}
}

// WithBackupRateLimit throttles backup archive output to bytesPerSec.
// Zero means unlimited.
func WithBackupRateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.backupRate = bytesPerSec
	}
}

// WithLoadConcurrency bounds the number of pages replayed in parallel by Open.
func WithLoadConcurrency(n int) Option {
	return func(o *options) {
		o.loadConcurrency = n
	}
}
