// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package filter narrows torrent snapshots with expr expressions and fuzzy
// name search.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torrentdash/internal/models"
)

const defaultCacheTTL = 5 * time.Minute

// maxFuzzyRank bounds how loose a fuzzy name match may be.
const maxFuzzyRank = 10

// Env is what an expression sees for a single torrent, e.g.
// `Ratio < 1 && State == "downloading"` or `Size > 1024 * 1024 * 1024`.
type Env struct {
	Hash          string
	Name          string
	State         string
	Size          int64
	Completed     float64
	DownloadSpeed float64
	UploadSpeed   float64
	Uploaded      int64
	Ratio         float64
	Selected      bool
}

func envOf(t models.Torrent) Env {
	return Env{
		Hash:          t.InfoHash,
		Name:          t.Name,
		State:         t.State,
		Size:          t.Size,
		Completed:     t.Completed,
		DownloadSpeed: t.DownloadSpeed,
		UploadSpeed:   t.UploadSpeed,
		Uploaded:      t.Uploaded,
		Ratio:         t.Ratio,
		Selected:      t.Selected,
	}
}

// Filter is a compiled expression. The nil Filter matches everything.
type Filter struct {
	source  string
	program *vm.Program
}

func (f *Filter) Source() string {
	if f == nil {
		return ""
	}
	return f.source
}

func (f *Filter) Match(t models.Torrent) (bool, error) {
	if f == nil {
		return true, nil
	}

	out, err := expr.Run(f.program, envOf(t))
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.source, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Apply keeps the torrents that match, in their original order. Evaluation
// errors drop the torrent and are reported once.
func (f *Filter) Apply(torrents []models.Torrent) ([]models.Torrent, error) {
	if f == nil {
		return torrents, nil
	}

	var firstErr error
	out := make([]models.Torrent, 0, len(torrents))
	for _, t := range torrents {
		ok, err := f.Match(t)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, firstErr
}

// Compiler caches compiled programs by source text.
type Compiler struct {
	cache *ttlcache.Cache[string, *vm.Program]
	ttl   time.Duration
}

func NewCompiler(ttl time.Duration) *Compiler {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Compiler{
		cache: ttlcache.New(ttlcache.Options[string, *vm.Program]{}.SetDefaultTTL(ttl)),
		ttl:   ttl,
	}
}

// Compile returns nil for a blank expression.
func (c *Compiler) Compile(source string) (*Filter, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	if p, ok := c.cache.Get(source); ok {
		log.Trace().Str("expr", source).Msg("Using cached expression")
		return &Filter{source: source, program: p}, nil
	}

	program, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", source, err)
	}
	if ok := c.cache.Set(source, program, c.ttl); !ok {
		log.Warn().Str("expr", source).Msg("Failed to cache expression")
	}
	return &Filter{source: source, program: program}, nil
}

// Search keeps torrents whose name matches query, either as a substring or
// fuzzily, or whose hash starts with it. Order is preserved.
func Search(query string, torrents []models.Torrent) []models.Torrent {
	query = strings.TrimSpace(query)
	if query == "" {
		return torrents
	}
	lower := strings.ToLower(query)

	out := make([]models.Torrent, 0, len(torrents))
	for _, t := range torrents {
		if matchesSearch(lower, t) {
			out = append(out, t)
		}
	}
	return out
}

func matchesSearch(query string, t models.Torrent) bool {
	if strings.HasPrefix(t.InfoHash, query) {
		return true
	}
	name := strings.ToLower(t.Name)
	if strings.Contains(name, query) {
		return true
	}
	if !fuzzy.MatchNormalizedFold(query, name) {
		return false
	}
	return fuzzy.RankMatchNormalizedFold(query, name) < maxFuzzyRank
}
