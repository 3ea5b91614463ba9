package ruleengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/marketpulse/marketpulse-x/internal/model"
	"github.com/marketpulse/marketpulse-x/internal/store"
)

// ruleDoc is the on-disk declarative shape for one rule definition
// (spec.md §6 "Rule definitions (consumed)").
type ruleDoc struct {
	Name    string             `yaml:"name"`
	Type    string             `yaml:"type"`
	Enabled bool               `yaml:"enabled"`
	Params  map[string]float64 `yaml:"params"`
}

// synonymDoc is the on-disk declarative synonym document (spec.md §6
// "Synonyms (consumed)"): explicit groups keyed by title, plus keyword
// groups.
type synonymDoc struct {
	Explicit map[string][]string `yaml:"explicit"`
	Keyword  []struct {
		Title    string   `yaml:"title"`
		Phrases  []string `yaml:"phrases"`
		Markets  []string `yaml:"markets"`
	} `yaml:"keyword"`
}

// DefinitionLoader watches a directory of rule/synonym YAML documents and
// materializes them into the store, bumping a rule's version only when its
// normalized content actually changes (SPEC_FULL.md §3's debounce note).
type DefinitionLoader struct {
	rulesDir    string
	synonymsDir string
	store       *store.Store
	logger      *zap.Logger
	watcher     *fsnotify.Watcher

	lastHash map[string]string
}

// NewDefinitionLoader constructs a loader over the given directories.
func NewDefinitionLoader(rulesDir, synonymsDir string, st *store.Store, logger *zap.Logger) *DefinitionLoader {
	return &DefinitionLoader{
		rulesDir:    rulesDir,
		synonymsDir: synonymsDir,
		store:       st,
		logger:      logger.With(zap.String("component", "ruleengine")),
		lastHash:    make(map[string]string),
	}
}

// LoadOnce reads both directories and materializes their contents once,
// used at startup before the watch loop begins.
func (l *DefinitionLoader) LoadOnce(ctx context.Context) error {
	if err := l.reloadRules(ctx); err != nil {
		return err
	}
	return l.reloadSynonyms(ctx)
}

// Watch starts an fsnotify watch on both directories, reloading on any
// write/create/rename event until ctx is cancelled. It never returns an
// error for individual reload failures — those are logged and skipped,
// matching the Rule Engine's "bad document shouldn't halt the process"
// posture.
func (l *DefinitionLoader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	l.watcher = w
	defer w.Close()

	for _, dir := range []string{l.rulesDir, l.synonymsDir} {
		if dir == "" {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			dir := filepath.Dir(event.Name)
			var reloadErr error
			if dir == l.rulesDir {
				reloadErr = l.reloadRules(ctx)
			} else if dir == l.synonymsDir {
				reloadErr = l.reloadSynonyms(ctx)
			}
			if reloadErr != nil {
				l.logger.Warn("reload failed", zap.String("file", event.Name), zap.Error(reloadErr))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (l *DefinitionLoader) reloadRules(ctx context.Context) error {
	entries, err := os.ReadDir(l.rulesDir)
	if err != nil {
		return fmt.Errorf("read rules dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(l.rulesDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("read rule doc failed", zap.String("path", path), zap.Error(err))
			continue
		}
		var doc ruleDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			l.logger.Warn("parse rule doc failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if err := l.upsertRule(ctx, doc); err != nil {
			l.logger.Warn("upsert rule failed", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

func (l *DefinitionLoader) upsertRule(ctx context.Context, doc ruleDoc) error {
	hash, err := contentHash(doc)
	if err != nil {
		return err
	}

	existing, err := l.store.GetRuleDefinition(ctx, doc.Name)
	version := 1
	if err == nil {
		version = existing.Version
		storedHash, herr := contentHash(ruleDoc{Type: string(existing.Type), Enabled: existing.Enabled, Params: existing.Params})
		if l.lastHash[doc.Name] == hash || (herr == nil && storedHash == hash) {
			l.lastHash[doc.Name] = hash
			return nil // no content change since last reload or vs the stored row: skip the version bump
		}
		version++
	} else if err != store.ErrNotFound {
		return err
	}
	l.lastHash[doc.Name] = hash

	return l.store.UpsertRuleDefinition(ctx, model.RuleDefinition{
		RuleID:  doc.Name,
		Name:    doc.Name,
		Type:    model.RuleType(doc.Type),
		Params:  doc.Params,
		Enabled: doc.Enabled,
		Version: version,
	})
}

func contentHash(doc ruleDoc) (string, error) {
	normalized := struct {
		Type    string             `json:"type"`
		Enabled bool               `json:"enabled"`
		Params  map[string]float64 `json:"params"`
	}{Type: doc.Type, Enabled: doc.Enabled, Params: doc.Params}
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("hash rule doc: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (l *DefinitionLoader) reloadSynonyms(ctx context.Context) error {
	entries, err := os.ReadDir(l.synonymsDir)
	if err != nil {
		return fmt.Errorf("read synonyms dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(l.synonymsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("read synonym doc failed", zap.String("path", path), zap.Error(err))
			continue
		}
		var doc synonymDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			l.logger.Warn("parse synonym doc failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if err := l.materializeSynonyms(ctx, doc); err != nil {
			l.logger.Warn("materialize synonyms failed", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

func (l *DefinitionLoader) materializeSynonyms(ctx context.Context, doc synonymDoc) error {
	titles := make([]string, 0, len(doc.Explicit))
	for title := range doc.Explicit {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		members := doc.Explicit[title]
		g := model.SynonymGroup{
			GroupID: groupID(model.SynonymExplicit, title),
			Method:  model.SynonymExplicit,
			Title:   title,
			Members: members,
		}
		if err := l.store.ReplaceSynonymGroup(ctx, g); err != nil {
			return fmt.Errorf("replace explicit group %s: %w", title, err)
		}
	}
	for _, kw := range doc.Keyword {
		g := model.SynonymGroup{
			GroupID: groupID(model.SynonymKeyword, kw.Title),
			Method:  model.SynonymKeyword,
			Title:   kw.Title,
			Members: kw.Markets,
		}
		if err := l.store.ReplaceSynonymGroup(ctx, g); err != nil {
			return fmt.Errorf("replace keyword group %s: %w", kw.Title, err)
		}
	}
	return nil
}

func groupID(method model.SynonymMethod, title string) string {
	slug := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
	return fmt.Sprintf("%s-%s", method, slug)
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
