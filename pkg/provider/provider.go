package provider

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Source is the capability a template engine needs from a template store:
// fetch source text and modification time, check existence and staleness.
// Modification times are Unix seconds.
type Source interface {
	GetSource(name string) ([]byte, int64, error)
	GetLastModified(name string) (int64, error)
	GetLastModifiedBatch(names []string) (map[string]int64, error)
	TemplateExists(name string) bool
	Verify(templates map[string]int64) bool
	GetList(extensions ...string) ([]string, error)
}

var _ Source = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for debug output about failed lookups.
// Default: a logger that discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Provider serves templates from a single directory tree.
// It holds no open handles and is immutable after New, so it is safe for
// concurrent use; consistency between concurrent readers and writers of the
// tree is left to the operating system.
type Provider struct {
	root   string
	logger *slog.Logger
}

// New binds a Provider to templateDir, which may be relative. The directory is
// made absolute and symlink-free; if that fails, or the path is not a
// directory, a *ConfigurationError is returned.
func New(templateDir string, opts ...Option) (*Provider, error) {
	abs, err := filepath.Abs(templateDir)
	if err != nil {
		return nil, &ConfigurationError{Dir: templateDir, Err: err}
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, &ConfigurationError{Dir: templateDir, Err: err}
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ConfigurationError{Dir: templateDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &ConfigurationError{Dir: templateDir, Err: fmt.Errorf("%s is not a directory", root)}
	}

	p := &Provider{
		root:   root,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Root returns the canonical root directory.
func (p *Provider) Root() string {
	return p.root
}

// GetSource returns the content of the named template and its modification
// time.
func (p *Provider) GetSource(name string) ([]byte, int64, error) {
	path, info, err := p.resolve(name)
	if err != nil {
		return nil, 0, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read template %s: %w", name, err)
	}
	return content, info.ModTime().Unix(), nil
}

// GetLastModified returns the modification time of the named template.
func (p *Provider) GetLastModified(name string) (int64, error) {
	_, info, err := p.resolve(name)
	if err != nil {
		return 0, err
	}
	return info.ModTime().Unix(), nil
}

// GetLastModifiedBatch returns the modification time of every name. Duplicate
// names collapse into one entry. The first name that cannot be resolved aborts
// the batch and its error is returned with a nil map.
func (p *Provider) GetLastModifiedBatch(names []string) (map[string]int64, error) {
	times := make(map[string]int64, len(names))
	for _, name := range names {
		if _, ok := times[name]; ok {
			continue
		}
		mtime, err := p.GetLastModified(name)
		if err != nil {
			return nil, err
		}
		times[name] = mtime
	}
	return times, nil
}

// TemplateExists reports whether a regular file exists at root/name. It does
// not check that name stays inside the root and never fails: any stat error
// counts as absent.
func (p *Provider) TemplateExists(name string) bool {
	info, err := os.Stat(filepath.Join(p.root, name))
	return err == nil && info.Mode().IsRegular()
}

// Verify reports whether every template still has exactly the recorded
// modification time. A missing template never matches. Names are trusted to
// have come from this Provider and are joined to the root without a
// containment check.
func (p *Provider) Verify(templates map[string]int64) bool {
	for name, mtime := range templates {
		info, err := os.Stat(filepath.Join(p.root, name))
		if err != nil {
			p.logger.Debug("Template changed", "template", name, "error", err)
			return false
		}
		if info.ModTime().Unix() != mtime {
			p.logger.Debug("Template changed", "template", name, "expected", mtime, "actual", info.ModTime().Unix())
			return false
		}
	}
	return true
}

// resolve maps name to a canonical path inside the root and stats it.
func (p *Provider) resolve(name string) (string, os.FileInfo, error) {
	path, err := filepath.EvalSymlinks(filepath.Join(p.root, name))
	if err != nil {
		p.logger.Debug("Failed to resolve template", "template", name, "error", err)
		return "", nil, &NotFoundError{Name: name, Err: err}
	}
	if !p.contains(path) {
		p.logger.Debug("Template resolves outside root", "template", name, "path", path, "root", p.root)
		return "", nil, &NotFoundError{Name: name}
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, &NotFoundError{Name: name, Err: err}
	}
	if info.IsDir() {
		return "", nil, &NotFoundError{Name: name, Err: fmt.Errorf("%s is a directory", path)}
	}
	return path, info, nil
}

// contains reports whether path is the root or lies beneath it. The check is
// on whole path elements, so a sibling such as /tpl2 is not inside /tpl.
func (p *Provider) contains(path string) bool {
	if path == p.root {
		return true
	}
	prefix := p.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
