package config

// Diff describes what changed between two configs. The log level is the
// only tracked field that can be applied without a process restart; router
// thresholds, integration weights, and the optimizer's strategy/constraints
// are reported as changed but are copied into the graph's dependencies at
// startup, so applying them takes a restart. Local model path and remote
// provider selection are not diffed here.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RouterChanged     bool
	IntegrationChanged bool
	OptimizerChanged  bool
}

// DiffConfigs compares old and new and returns what changed.
func DiffConfigs(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Router != new.Router {
		d.RouterChanged = true
	}

	if old.Integration != new.Integration {
		d.IntegrationChanged = true
	}

	if old.Optimizer.Strategy != new.Optimizer.Strategy ||
		old.Optimizer.Constraints != new.Optimizer.Constraints {
		d.OptimizerChanged = true
	}

	return d
}
