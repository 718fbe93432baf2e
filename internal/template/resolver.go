// Package template resolves notification content from named templates,
// preferring an active database override over the file-system variant and
// caching rendered output keyed by (template, locale, data hash).
package template

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	texttemplate "text/template"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"go.uber.org/zap"
)

// NoDataHash is the sentinel data hash for renders without substitution data.
const NoDataHash = "no-data"

// Store looks up database template overrides.
type Store interface {
	FindByNameAndLocale(ctx context.Context, name, locale string) (*domain.TemplateRecord, error)
}

// Cache stores rendered output. Implementations must treat failures as
// misses; rendering never depends on the cache being available.
type Cache interface {
	Get(ctx context.Context, name, locale, dataHash string) (string, bool)
	Set(ctx context.Context, name, locale, dataHash, content string)
}

type Resolver struct {
	store         Store
	cache         Cache
	dir           string
	defaultLocale string
	logger        *zap.Logger
}

func NewResolver(store Store, cache Cache, dir, defaultLocale string, logger *zap.Logger) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("template store is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("template cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		store:         store,
		cache:         cache,
		dir:           dir,
		defaultLocale: defaultLocale,
		logger:        logger,
	}, nil
}

// Render resolves and renders the template identified by name (in
// "channel/name" form, e.g. "email/welcome") and locale.
func (r *Resolver) Render(ctx context.Context, name, locale string, data map[string]string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: template name is required", domain.ErrValidation)
	}
	if strings.TrimSpace(locale) == "" {
		locale = r.defaultLocale
	}

	dataHash := DataHash(data)
	if cached, ok := r.cache.Get(ctx, name, locale, dataHash); ok {
		r.logger.Debug("template cache hit",
			zap.String("template", name),
			zap.String("locale", locale),
		)
		return cached, nil
	}

	source, err := r.loadSource(ctx, name, locale)
	if err != nil {
		return "", err
	}

	rendered, err := render(name, source, data)
	if err != nil {
		return "", err
	}

	r.cache.Set(ctx, name, locale, dataHash, rendered)
	return rendered, nil
}

func (r *Resolver) loadSource(ctx context.Context, name, locale string) (string, error) {
	override, err := r.store.FindByNameAndLocale(ctx, name, locale)
	if err == nil && override.Active {
		r.logger.Debug("rendering database template override",
			zap.String("template", name),
			zap.String("locale", locale),
		)
		return override.Content, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("failed to look up template override: %w", err)
	}

	path := filepath.Join(r.dir, FilePath(name, locale))
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s (locale %s)", domain.ErrTemplateNotFound, name, locale)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrTemplateNotFound, name, err)
	}
	return string(content), nil
}

// FilePath maps a template name and locale to the file-system layout
// {channel}/{name}_{locale}.{ext}, where the extension is fixed per channel
// (html for email, txt otherwise).
func FilePath(name, locale string) string {
	ext := "html"
	if folder, _, ok := strings.Cut(name, "/"); ok {
		if channel, err := domain.ParseChannelFromString(folder); err == nil {
			ext = channel.TemplateExtension()
		}
	}
	return fmt.Sprintf("%s_%s.%s", name, locale, ext)
}

// DataHash produces a stable fingerprint of the substitution data. Keys are
// sorted so identical maps always hash identically.
func DataHash(data map[string]string) string {
	if len(data) == 0 {
		return NoDataHash
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, data[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateSyntax checks that content parses with the engine used for the
// named template. Called on template create/update before persisting.
func ValidateSyntax(name, content string) error {
	var err error
	if isHTMLTemplate(name) {
		_, err = htmltemplate.New(name).Parse(content)
	} else {
		_, err = texttemplate.New(name).Parse(content)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTemplateRender, err)
	}
	return nil
}

// render executes the template source against data. Email templates go
// through html/template for contextual escaping; everything else renders as
// plain text.
func render(name, source string, data map[string]string) (string, error) {
	var buf bytes.Buffer

	if isHTMLTemplate(name) {
		tmpl, err := htmltemplate.New(name).Parse(source)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrTemplateRender, name, err)
		}
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrTemplateRender, name, err)
		}
		return buf.String(), nil
	}

	tmpl, err := texttemplate.New(name).Parse(source)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrTemplateRender, name, err)
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrTemplateRender, name, err)
	}
	return buf.String(), nil
}

func isHTMLTemplate(name string) bool {
	folder, _, _ := strings.Cut(name, "/")
	return strings.EqualFold(folder, domain.ChannelEmail.String())
}
