// Package options contains flags and options for initializing the docvector server.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/docvector/internal/docvector"
	"github.com/kart-io/docvector/pkg/infra/app"
	cacheopts "github.com/kart-io/docvector/pkg/options/cache"
	httpopts "github.com/kart-io/docvector/pkg/options/http"
	llmopts "github.com/kart-io/docvector/pkg/options/llm"
	logopts "github.com/kart-io/docvector/pkg/options/logger"
	pgopts "github.com/kart-io/docvector/pkg/options/postgres"
	tracingopts "github.com/kart-io/docvector/pkg/options/tracing"
	vectoropts "github.com/kart-io/docvector/pkg/options/vector"
)

var _ app.CliOptions = (*ServerOptions)(nil)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// PostgresOptions contains PostgreSQL configuration.
	PostgresOptions *pgopts.Options `json:"postgres" mapstructure:"postgres"`

	// CacheOptions contains cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// VectorOptions contains chunking, embedding and search configuration.
	VectorOptions *vectoropts.Options `json:"vector" mapstructure:"vector"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = ":8090"

	return &ServerOptions{
		HTTPOptions:      httpOpts,
		LogOptions:       logopts.NewOptions(),
		PostgresOptions:  pgopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		VectorOptions:    vectoropts.NewOptions(),
		TracingOptions:   tracingopts.NewOptions(),
		ShutdownTimeout:  30 * time.Second,
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss app.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.PostgresOptions.AddFlags(fss.FlagSet("postgres"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.VectorOptions.AddFlags(fss.FlagSet("vector"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))

	// misc flags
	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.LogOptions.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.PostgresOptions.Complete(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.VectorOptions.Complete(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := o.TracingOptions.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.PostgresOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.VectorOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)

	if o.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must not be negative"))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a docvector.Config based on ServerOptions.
func (o *ServerOptions) Config() (*docvector.Config, error) {
	return &docvector.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		PostgresOptions:  o.PostgresOptions,
		CacheOptions:     o.CacheOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		VectorOptions:    o.VectorOptions,
		TracingOptions:   o.TracingOptions,
		ShutdownTimeout:  o.ShutdownTimeout,
	}, nil
}
