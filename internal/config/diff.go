package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DictionaryChanged bool
	Words             []string

	PluginChanges []PluginDiff

	// RestartRequired names the sections whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DictionaryChanged && len(d.PluginChanges) == 0 && len(d.RestartRequired) == 0
}

// PluginDiff describes what changed for a single plugin entry.
type PluginDiff struct {
	Name string

	// EnabledChanged is set when the enabled flag differs; Enabled holds
	// the new value.
	EnabledChanged bool
	Enabled        bool

	Added          bool
	Removed        bool
	OptionsChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Dictionary.Words, new.Dictionary.Words) {
		d.DictionaryChanged = true
		d.Words = slices.Clone(new.Dictionary.Words)
	}

	oldPlugins := make(map[string]*PluginEntry, len(old.Plugins.Entries))
	for i := range old.Plugins.Entries {
		oldPlugins[old.Plugins.Entries[i].Name] = &old.Plugins.Entries[i]
	}
	newPlugins := make(map[string]*PluginEntry, len(new.Plugins.Entries))
	for i := range new.Plugins.Entries {
		newPlugins[new.Plugins.Entries[i].Name] = &new.Plugins.Entries[i]
	}

	// Walk in config order so the result is deterministic.
	for _, oe := range old.Plugins.Entries {
		ne, ok := newPlugins[oe.Name]
		if !ok {
			d.PluginChanges = append(d.PluginChanges, PluginDiff{Name: oe.Name, Removed: true})
			continue
		}
		pd := PluginDiff{Name: oe.Name, Enabled: ne.Enabled}
		pd.EnabledChanged = oe.Enabled != ne.Enabled
		pd.OptionsChanged = oe.Ordinal != ne.Ordinal || !reflect.DeepEqual(oe.Options, ne.Options)
		if pd.EnabledChanged || pd.OptionsChanged {
			d.PluginChanges = append(d.PluginChanges, pd)
		}
	}
	for _, ne := range new.Plugins.Entries {
		if _, ok := oldPlugins[ne.Name]; !ok {
			d.PluginChanges = append(d.PluginChanges, PluginDiff{Name: ne.Name, Enabled: ne.Enabled, Added: true})
		}
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Service, new.Service) {
		d.RestartRequired = append(d.RestartRequired, "service")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Sink != new.Sink {
		d.RestartRequired = append(d.RestartRequired, "sink")
	}
	if old.Plugins.DisableOnFailure != new.Plugins.DisableOnFailure {
		d.RestartRequired = append(d.RestartRequired, "plugins.disable_on_failure")
	}
	for _, pd := range d.PluginChanges {
		if pd.Added || pd.Removed || pd.OptionsChanged {
			d.RestartRequired = append(d.RestartRequired, "plugins.entries["+pd.Name+"]")
		}
	}

	return d
}
