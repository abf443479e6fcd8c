package strategy

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot is an immutable view of the loaded strategies.
type Snapshot struct {
	Strategies []Strategy
	Version    int64
}

// Find returns the strategy with the given rule id.
func (s *Snapshot) Find(ruleID int64) (Strategy, bool) {
	for _, st := range s.Strategies {
		if st.RuleID == ruleID {
			return st, true
		}
	}
	return Strategy{}, false
}

// Loader handles loading and managing aggregation strategies
type Loader struct {
	strategiesDir string
	hotReload     bool
	logger        *slog.Logger
	mu            sync.RWMutex
	snapshot      *Snapshot
	watchers      []chan struct{}
	debounceMs    int
}

// NewLoader creates a new strategy loader
func NewLoader(strategiesDir string, hotReload bool, debounceMs int, logger *slog.Logger) *Loader {
	return &Loader{
		strategiesDir: strategiesDir,
		hotReload:     hotReload,
		logger:        logger,
		debounceMs:    debounceMs,
	}
}

// LoadSnapshot loads all strategies from the strategies directory
func (l *Loader) LoadSnapshot() (*Snapshot, error) {
	l.logger.Info("Loading strategies snapshot", "strategies_dir", l.strategiesDir)

	files, err := l.readStrategyFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy files: %w", err)
	}

	strategyMap := make(map[int64]Strategy) // For deduplication by rule id

	for _, file := range files {
		strategies, err := l.loadStrategiesFromFile(file)
		if err != nil {
			l.logger.Warn("Failed to load strategies from file", "file", file, "error", err)
			continue
		}

		for _, st := range strategies {
			// Skip disabled strategies
			if !st.IsEnabled() {
				l.logger.Debug("Skipping disabled strategy", "rule_id", st.RuleID, "file", file)
				continue
			}

			// Validate strategy
			if err := st.Validate(); err != nil {
				l.logger.Warn("Invalid strategy skipped", "rule_id", st.RuleID, "file", file, "error", err)
				continue
			}

			// Handle rule id conflicts (filename override wins)
			if existing, exists := strategyMap[st.RuleID]; exists {
				l.logger.Info("Strategy rule id conflict resolved by filename override",
					"rule_id", st.RuleID,
					"new_file", file,
					"old_file", existing.SourceFile)
			}

			st.SourceFile = file
			strategyMap[st.RuleID] = st
		}
	}

	// Convert map to slice and sort by rule id for consistent ordering
	allStrategies := make([]Strategy, 0, len(strategyMap))
	for _, st := range strategyMap {
		allStrategies = append(allStrategies, st)
	}

	sort.Slice(allStrategies, func(i, j int) bool {
		return allStrategies[i].RuleID < allStrategies[j].RuleID
	})

	snapshot := &Snapshot{
		Strategies: allStrategies,
		Version:    time.Now().UnixNano(),
	}

	l.logger.Info("Strategies snapshot loaded",
		"total_strategies", len(allStrategies),
		"version", snapshot.Version)

	// Update internal snapshot
	l.mu.Lock()
	l.snapshot = snapshot
	l.mu.Unlock()

	// Notify watchers
	l.notifyWatchers()

	return snapshot, nil
}

// GetSnapshot returns the current strategies snapshot
func (l *Loader) GetSnapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.snapshot == nil {
		return &Snapshot{Strategies: []Strategy{}, Version: 0}
	}

	// Return a copy to prevent external modifications
	strategies := make([]Strategy, len(l.snapshot.Strategies))
	copy(strategies, l.snapshot.Strategies)

	return &Snapshot{
		Strategies: strategies,
		Version:    l.snapshot.Version,
	}
}

// WatchForChanges starts watching for strategy file changes (if hot reload is enabled)
func (l *Loader) WatchForChanges() error {
	if !l.hotReload {
		l.logger.Info("Hot reload disabled")
		return nil
	}

	l.logger.Info("Starting strategy file watcher", "strategies_dir", l.strategiesDir)

	// Create debounced reload channel
	reloadChan := make(chan struct{}, 1)

	// Start file watcher
	go l.watchFiles(reloadChan)

	// Start debounced reloader
	go l.debouncedReload(reloadChan)

	return nil
}

// Subscribe returns a channel that receives notifications when strategies change
func (l *Loader) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	l.mu.Lock()
	l.watchers = append(l.watchers, ch)
	l.mu.Unlock()

	// Send current snapshot immediately
	go func() {
		ch <- struct{}{}
	}()

	return ch
}

// readStrategyFiles reads all strategy files from the strategies directory, sorted by filename
func (l *Loader) readStrategyFiles() ([]string, error) {
	var files []string

	err := filepath.WalkDir(l.strategiesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if d.IsDir() {
			return nil
		}

		// Only process YAML and JSON files
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" || ext == ".json" {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	// Sort files by filename for consistent loading order
	sort.Strings(files)

	return files, nil
}

// loadStrategiesFromFile loads strategies from a single file. JSON files are
// parsed by the same YAML decoder since JSON is a YAML subset.
func (l *Loader) loadStrategiesFromFile(filename string) ([]Strategy, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var strategies []Strategy

	// Try to parse as single strategy first
	var single Strategy
	if err := yaml.Unmarshal(data, &single); err == nil && single.RuleID != 0 {
		strategies = append(strategies, single)
	} else {
		// Try parsing as array of strategies
		if err := yaml.Unmarshal(data, &strategies); err != nil {
			return nil, fmt.Errorf("failed to parse strategy file: %w", err)
		}
	}

	l.logger.Debug("Loaded strategies from file", "file", filename, "count", len(strategies))
	return strategies, nil
}

// watchFiles watches for file system changes
func (l *Loader) watchFiles(reloadChan chan struct{}) {
	// Simple polling-based watcher (in production, you might use fsnotify)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastModTime time.Time
	lastCount := -1

	for range ticker.C {
		hasChanges := false
		count := 0

		err := filepath.WalkDir(l.strategiesDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".yaml" || ext == ".yml" || ext == ".json" {
				info, err := d.Info()
				if err != nil {
					return err
				}

				count++
				if info.ModTime().After(lastModTime) {
					lastModTime = info.ModTime()
					hasChanges = true
				}
			}

			return nil
		})

		if err != nil {
			l.logger.Error("Error watching strategy files", "error", err)
			continue
		}

		// A removed file never bumps the mod time, so track the count too
		if lastCount >= 0 && count != lastCount {
			hasChanges = true
		}
		lastCount = count

		if hasChanges {
			l.logger.Info("Strategy files changed, triggering reload")
			select {
			case reloadChan <- struct{}{}:
			default:
				// Channel is full, skip this notification
			}
		}
	}
}

// debouncedReload handles debounced strategy reloading
func (l *Loader) debouncedReload(reloadChan chan struct{}) {
	var timer *time.Timer

	for range reloadChan {
		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(time.Duration(l.debounceMs)*time.Millisecond, func() {
			l.logger.Info("Debounced reload triggered")
			if _, err := l.LoadSnapshot(); err != nil {
				l.logger.Error("Failed to reload strategies", "error", err)
			}
		})
	}
}

// notifyWatchers notifies all subscribed watchers
func (l *Loader) notifyWatchers() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.watchers {
		select {
		case ch <- struct{}{}:
		default:
			// Channel is full, skip this notification
		}
	}
}
