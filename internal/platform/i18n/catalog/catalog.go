// Package catalog embeds the per-locale YAML message files and registers
// them with x/text so arena services can print localized error and
// notification copy.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the source locale every other catalog translates from.
const BaseLocale = "en-US"

//go:embed locales/*/*.yaml
var localeFS embed.FS

type localeFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle indexes every loaded locale: all messages flat, plus per-namespace
// views for callers that slice copy by feature area.
type Bundle struct {
	locales map[string]*localeTable
}

type localeTable struct {
	namespaces map[string]map[string]string
	flat       map[string]string
}

var defaultBundle = func() *Bundle {
	bundle, err := LoadEmbedded()
	if err != nil {
		panic(err)
	}
	if err := bundle.Register(); err != nil {
		panic(err)
	}
	return bundle
}()

// Default returns the bundle built from the embedded locale files.
func Default() *Bundle {
	return defaultBundle
}

// LoadEmbedded parses the locale files compiled into the binary.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(localeFS)
}

// LoadFromFS parses locale files laid out as locales/<locale>/<namespace>.yaml.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list locale files: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no locale files under locales/")
	}
	sort.Strings(paths)

	bundle := &Bundle{locales: map[string]*localeTable{}}
	for _, path := range paths {
		if err := bundle.loadFile(fsys, path); err != nil {
			return nil, err
		}
	}

	if !bundle.HasLocale(BaseLocale) {
		return nil, fmt.Errorf("locale files missing base locale %s", BaseLocale)
	}
	return bundle, nil
}

func (b *Bundle) loadFile(fsys fs.FS, path string) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var file localeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	locale := strings.TrimSpace(file.Locale)
	namespace := strings.TrimSpace(file.Namespace)
	wantLocale := filepath.Base(filepath.Dir(path))
	wantNamespace := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch {
	case locale == "":
		return fmt.Errorf("%s: locale is required", path)
	case locale != wantLocale:
		return fmt.Errorf("%s: locale %q does not match directory %q", path, locale, wantLocale)
	case namespace == "":
		return fmt.Errorf("%s: namespace is required", path)
	case namespace != wantNamespace:
		return fmt.Errorf("%s: namespace %q does not match file name %q", path, namespace, wantNamespace)
	case file.Messages == nil:
		return fmt.Errorf("%s: messages map is required", path)
	}

	table := b.locales[locale]
	if table == nil {
		table = &localeTable{
			namespaces: map[string]map[string]string{},
			flat:       map[string]string{},
		}
		b.locales[locale] = table
	}
	return table.merge(path, locale, namespace, file.Messages)
}

func (t *localeTable) merge(path, locale, namespace string, messages map[string]string) error {
	if _, dup := t.namespaces[namespace]; dup {
		return fmt.Errorf("%s: namespace %q loaded twice for locale %q", path, namespace, locale)
	}

	scoped := make(map[string]string, len(messages))
	for key, value := range messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("%s: blank message key", path)
		}
		if strings.HasPrefix(key, "core.") && namespace != "core" {
			return fmt.Errorf("%s: key %q belongs to the core namespace", path, key)
		}
		if _, dup := t.flat[key]; dup {
			return fmt.Errorf("%s: key %q already defined for locale %q", path, key, locale)
		}
		t.flat[key] = value
		scoped[key] = value
	}

	t.namespaces[namespace] = scoped
	return nil
}

// Register installs every message into the x/text catalog, once under the
// full locale tag and once under its bare base language so region-less
// lookups still resolve.
func (b *Bundle) Register() error {
	if b == nil {
		return nil
	}
	for _, locale := range b.Locales() {
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale %q: %w", locale, err)
		}

		messages := b.LocaleMessages(locale)
		keys := make([]string, 0, len(messages))
		for key := range messages {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, target := range registerTags(tag) {
			for _, key := range keys {
				message.SetString(target, key, messages[key])
			}
		}
	}
	return nil
}

// registerTags returns the tag itself plus its bare base language when the
// two differ.
func registerTags(tag language.Tag) []language.Tag {
	tags := []language.Tag{tag}
	base, _ := tag.Base()
	name := base.String()
	if name == "" || name == "und" {
		return tags
	}
	if baseTag, err := language.Parse(name); err == nil && baseTag.String() != tag.String() {
		tags = append(tags, baseTag)
	}
	return tags
}

// HasLocale reports whether locale has any messages loaded.
func (b *Bundle) HasLocale(locale string) bool {
	if b == nil {
		return false
	}
	_, ok := b.locales[strings.TrimSpace(locale)]
	return ok
}

// Locales lists the loaded locale names in sorted order.
func (b *Bundle) Locales() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.locales))
	for locale := range b.locales {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// LocaleMessages returns a copy of every message for locale, across all
// namespaces.
func (b *Bundle) LocaleMessages(locale string) map[string]string {
	if b == nil {
		return map[string]string{}
	}
	table := b.locales[strings.TrimSpace(locale)]
	if table == nil {
		return map[string]string{}
	}
	return cloned(table.flat)
}

// NamespaceMessages returns a copy of the locale's messages for one
// namespace only.
func (b *Bundle) NamespaceMessages(locale, namespace string) map[string]string {
	if b == nil {
		return map[string]string{}
	}
	table := b.locales[strings.TrimSpace(locale)]
	if table == nil {
		return map[string]string{}
	}
	return cloned(table.namespaces[strings.TrimSpace(namespace)])
}

// NamespaceMessagesWithFallback resolves namespace messages for locale,
// dropping to the base locale when the requested one has none. It returns
// the locale that satisfied the lookup.
func (b *Bundle) NamespaceMessagesWithFallback(locale, namespace string) (string, map[string]string) {
	locale = strings.TrimSpace(locale)
	namespace = strings.TrimSpace(namespace)
	if messages := b.NamespaceMessages(locale, namespace); len(messages) > 0 {
		return locale, messages
	}
	return BaseLocale, b.NamespaceMessages(BaseLocale, namespace)
}

func cloned(messages map[string]string) map[string]string {
	if len(messages) == 0 {
		return map[string]string{}
	}
	return maps.Clone(messages)
}
