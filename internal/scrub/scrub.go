// Package scrub removes secrets from transcripts before they are sent to
// the language model. People dictate API keys and passwords more often than
// you would expect.
package scrub

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

var (
	// ErrInvalidAllowlist is returned for an unparsable allowlist file.
	ErrInvalidAllowlist = errors.New("invalid allowlist file")

	// ErrInvalidRegex is returned for an allowlist pattern that does not compile.
	ErrInvalidRegex = errors.New("invalid allowlist regex")
)

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Secret string
}

// Scrubber detects secrets with the gitleaks rule set.
type Scrubber struct {
	mu       sync.Mutex
	detector *detect.Detector
	logger   *zap.Logger
}

// New returns a Scrubber. allowlistFile is an optional TOML file:
//
//	[allowlist]
//	regexes = ['''project-[0-9]+''']
//
// A missing file is ignored.
func New(allowlistFile string, logger *zap.Logger) (*Scrubber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}

	if allowlistFile != "" {
		patterns, err := loadAllowlist(allowlistFile)
		if err != nil {
			return nil, err
		}
		applyAllowlist(&detector.Config, patterns)
	}
	return &Scrubber{detector: detector, logger: logger}, nil
}

// Scrub replaces every detected secret in text with [REDACTED:<rule>].
func (s *Scrubber) Scrub(text string) (string, []Finding) {
	s.mu.Lock()
	raw := s.detector.DetectString(text)
	s.mu.Unlock()

	if len(raw) == 0 {
		return text, nil
	}

	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		if f.Secret == "" {
			continue
		}
		findings = append(findings, Finding{RuleID: f.RuleID, Secret: f.Secret})
	}
	// Longest first so a secret containing another is replaced whole.
	sort.Slice(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})

	out := text
	rules := make([]string, 0, len(findings))
	for _, f := range findings {
		out = strings.ReplaceAll(out, f.Secret, "[REDACTED:"+f.RuleID+"]")
		rules = append(rules, f.RuleID)
	}
	s.logger.Info("scrubbed secrets from transcript", zap.Strings("rules", rules))
	return out, findings
}

func loadAllowlist(path string) ([]string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	var file struct {
		Allowlist struct {
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowlist, path, err)
	}
	for _, p := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, p, path, err)
		}
	}
	return file.Allowlist.Regexes, nil
}

func applyAllowlist(cfg *gitleaksConfig.Config, patterns []string) {
	if len(patterns) == 0 {
		return
	}
	al := &gitleaksConfig.Allowlist{Description: "voicetask transcript allowlist"}
	for _, p := range patterns {
		al.Regexes = append(al.Regexes, (*gitleaksRegexp.Regexp)(regexp.MustCompile(p)))
	}
	al.StopWords = append(al.StopWords, patterns...)
	cfg.Allowlists = append(cfg.Allowlists, al)
}
