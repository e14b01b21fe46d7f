// Package factory builds snapshot writers from configuration. Writer
// implementations register themselves by type name from their init functions.
package factory

import (
	"fmt"
	"log"
	"sort"

	"NetSpeedMonitor/internal/config"
	"NetSpeedMonitor/internal/model"
)

// WriterFactory creates a writer from its configuration block.
type WriterFactory func(def config.WriterDef) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the sorted names of all registered writer types.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every enabled writer in cfg. Disabled writers are skipped.
func Create(cfg *config.ExporterConfig) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		log.Printf("Creating writer of type '%s' with interval %s", def.Type, def.SnapshotInterval)

		factory, ok := registry[def.Type]
		if !ok {
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		w, err := factory(def)
		if err != nil {
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, w)
	}
	return writers, nil
}
