// Package config loads query, cache, and invalidation-rule definitions
// from a YAML file into validated model types, so the rest of the system
// only ever sees well-formed descriptors.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cordal/queryflow/pkg/apierror"
	"github.com/cordal/queryflow/pkg/models"
)

// yamlInvalidationRule mirrors models.InvalidationRuleSpec with a
// human-writable delay ("500ms", "2s") instead of time.Duration.
type yamlInvalidationRule struct {
	EventType string   `yaml:"eventType"`
	Patterns  []string `yaml:"patterns"`
	Condition string   `yaml:"condition"`
	Async     *bool    `yaml:"async"`
	Delay     string   `yaml:"delay"`
}

type yamlCacheSpec struct {
	Enabled            bool                   `yaml:"enabled"`
	CacheName          string                 `yaml:"cacheName"`
	TTLSeconds         int64                  `yaml:"ttlSeconds"`
	KeyPatternTemplate string                 `yaml:"keyPatternTemplate"`
	InvalidateOn       []string               `yaml:"invalidateOn"`
	InvalidationRules  []yamlInvalidationRule `yaml:"invalidationRules"`
}

type yamlQuery struct {
	Name           string        `yaml:"name"`
	DatabaseName   string        `yaml:"databaseName"`
	SQLText        string        `yaml:"sqlText"`
	ParameterNames []string      `yaml:"parameterNames"`
	Cache          yamlCacheSpec `yaml:"cache"`
}

type yamlDatabase struct {
	Name     string `yaml:"name"`
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

type yamlRoot struct {
	Databases []yamlDatabase `yaml:"databases"`
	Queries   []yamlQuery    `yaml:"queries"`
}

// DatabaseConfig mirrors connection.DatabaseConfig without importing the
// connection package, keeping config free of a dependency on the driver
// implementation it configures.
type DatabaseConfig struct {
	Name     string
	DSN      string
	MaxConns int32
	MinConns int32
}

// Document is the fully parsed and validated contents of a query
// configuration file.
type Document struct {
	Databases []DatabaseConfig
	Queries   []models.QueryDescriptor
}

// Load reads and validates path, returning apierror.BadRequest on malformed
// YAML or a failed Validate() call so the caller can surface a clean 400
// rather than a panic or raw parse error.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apierror.Wrap(apierror.BadRequest, fmt.Sprintf("reading config file %q", path), err)
	}
	return Parse(data)
}

// Parse validates and converts raw YAML bytes into a Document.
func Parse(data []byte) (*Document, error) {
	var root yamlRoot
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, apierror.Wrap(apierror.BadRequest, "parsing query config YAML", err)
	}

	doc := &Document{
		Databases: make([]DatabaseConfig, len(root.Databases)),
		Queries:   make([]models.QueryDescriptor, len(root.Queries)),
	}
	for i, d := range root.Databases {
		// DSNs typically carry credentials via ${VAR} references rather
		// than literals checked into the config file.
		doc.Databases[i] = DatabaseConfig{Name: d.Name, DSN: os.ExpandEnv(d.DSN), MaxConns: d.MaxConns, MinConns: d.MinConns}
	}
	for i, q := range root.Queries {
		descriptor, err := q.toModel()
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", q.Name, err)
		}
		doc.Queries[i] = descriptor
	}
	return doc, nil
}

func (q yamlQuery) toModel() (models.QueryDescriptor, error) {
	cache, err := q.Cache.toModel()
	if err != nil {
		return models.QueryDescriptor{}, err
	}
	d := models.QueryDescriptor{
		Name:           q.Name,
		DatabaseName:   q.DatabaseName,
		SQLText:        q.SQLText,
		ParameterNames: q.ParameterNames,
		Cache:          cache,
	}
	if err := d.Validate(); err != nil {
		return models.QueryDescriptor{}, err
	}
	return d, nil
}

func (c yamlCacheSpec) toModel() (models.CacheSpec, error) {
	rules := make([]models.InvalidationRuleSpec, len(c.InvalidationRules))
	for i, r := range c.InvalidationRules {
		rule, err := r.toModel()
		if err != nil {
			return models.CacheSpec{}, err
		}
		rules[i] = rule
	}
	return models.CacheSpec{
		Enabled:            c.Enabled,
		CacheName:          c.CacheName,
		TTLSeconds:         c.TTLSeconds,
		KeyPatternTemplate: c.KeyPatternTemplate,
		InvalidateOn:       c.InvalidateOn,
		InvalidationRules:  rules,
	}, nil
}

func (r yamlInvalidationRule) toModel() (models.InvalidationRuleSpec, error) {
	var delay time.Duration
	if r.Delay != "" {
		d, err := time.ParseDuration(r.Delay)
		if err != nil {
			return models.InvalidationRuleSpec{}, apierror.Wrap(apierror.BadRequest, fmt.Sprintf("invalid delay %q", r.Delay), err)
		}
		delay = d
	}
	async := true // absent async: means asynchronous, only an explicit false opts out
	if r.Async != nil {
		async = *r.Async
	}
	spec := models.InvalidationRuleSpec{
		EventType: r.EventType,
		Patterns:  r.Patterns,
		Condition: r.Condition,
		Async:     async,
		Delay:     delay,
	}
	if err := spec.Validate(); err != nil {
		return models.InvalidationRuleSpec{}, err
	}
	return spec, nil
}
