/*
Package config loads registry settings from YAML, JSON and the environment.

# Overview

Config wraps a map[string]any and provides typed accessors that fall back to
a default when a key is missing or holds the wrong type:

	cfg, err := config.FromFile("mpointer.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	mode := cfg.Section("registry").String("reclaim_mode", config.ReclaimDeferred)

# Settings

Settings is the typed registry configuration. LoadSettings reads a file and
then applies MPOINTER_* environment variables, which win over file values:

	s, err := config.LoadSettings("mpointer.yaml")
	// MPOINTER_RECLAIM_MODE=immediate overrides reclaim_mode from the file

Recognized keys: name, reclaim_mode (deferred|immediate), metrics, tracing,
journal, log_level (debug|info|warn|error), slow_sweep.

# Thread Safety

Config and Settings are values and safe for concurrent reads. The map passed
to New must not be modified afterwards.
*/
package config
