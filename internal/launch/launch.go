package launch

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Config is the launch configuration resolved once per run. Never mutated.
type Config struct {
	Binary     string   `json:"binary" yaml:"binary"`
	Page       string   `json:"page" yaml:"page"`
	Value      string   `json:"value" yaml:"value"`
	TargetURL  string   `json:"target_url" yaml:"target_url"`
	ProfileDir string   `json:"profile_dir" yaml:"profile_dir"`
	ExtraFlags []string `json:"extra_flags,omitempty" yaml:"extra_flags,omitempty"`
}

// Options are the inputs New combines into a Config
type Options struct {
	Binary     string
	Page       string
	Value      string
	ProfileDir string
	ExtraFlags []string
}

// DefaultFlags returns the hardened kiosk flag set, minus the profile dir
func DefaultFlags() []string {
	return []string{
		"--kiosk",
		"--no-sandbox",
		"--incognito",
		"--no-first-run",
		"--disable-translate",
		"--disable-features=Translate",
		"--disable-web-security",
		"--disable-notifications",
		"--disable-save-password-bubble",
		"--password-store=basic",
		"--noerrdialogs",
		"--disable-infobars",
		"--disable-session-crashed-bubble",
	}
}

// New builds an immutable Config
func New(opts Options) Config {
	extra := make([]string, len(opts.ExtraFlags))
	copy(extra, opts.ExtraFlags)

	return Config{
		Binary:     opts.Binary,
		Page:       opts.Page,
		Value:      opts.Value,
		TargetURL:  TargetURL(opts.Page, opts.Value),
		ProfileDir: opts.ProfileDir,
		ExtraFlags: extra,
	}
}

// TargetURL turns page into a URI and appends value as the fragment.
// The separator is always present, so an empty value yields a trailing '#'.
func TargetURL(page, value string) string {
	return PageURI(page) + "#" + value
}

// PageURI returns page as a URI. Filesystem paths become file:// URIs,
// anything that already carries a scheme is returned as is.
func PageURI(page string) string {
	if u, err := url.Parse(page); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return strings.TrimSuffix(page, "#")
	}

	path := page
	if abs, err := filepath.Abs(page); err == nil {
		path = abs
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// Args returns a fresh argv (without the binary) for one launch
func (c Config) Args() []string {
	flags := DefaultFlags()
	args := make([]string, 0, len(flags)+len(c.ExtraFlags)+2)
	args = append(args, flags...)
	args = append(args, "--user-data-dir="+c.ProfileDir)
	args = append(args, c.ExtraFlags...)
	args = append(args, c.TargetURL)
	return args
}
