package bootstrap

import (
	"fmt"
	"plugin"
	"strings"

	"github.com/forkcore/platform/internal/logging"
)

// AppLibListEnv is the environment variable naming colon-separated
// plugin paths to load before the dispatcher spawns its per-core loops.
const AppLibListEnv = "PLATFORM_APP_LIST"

// AppLib is one loaded application library's four required callbacks,
// resolved by name from a plugin.Plugin.
type AppLib struct {
	Path       string
	GlobalInit func() int
	LocalInit  func(core int)
	LocalExit  func(core int)
	GlobalExit func()
}

// LoadAppLibs reads envValue (typically os.Getenv(AppLibListEnv)) and
// loads each colon-separated path via Go's plugin package, resolving
// its four required exported symbols. A library that fails to open, or
// is missing a symbol, is excluded with a logged error rather than
// aborting startup - one bad library doesn't bring down the rest.
func LoadAppLibs(envValue string) []*AppLib {
	if strings.TrimSpace(envValue) == "" {
		logging.Info("bootstrap: " + AppLibListEnv + " not set, loading no application libraries")
		return nil
	}

	var libs []*AppLib
	for _, path := range strings.Split(envValue, ":") {
		if path == "" {
			continue
		}
		logging.Debug("bootstrap: loading application library", "path", path)
		lib, err := loadAppLib(path)
		if err != nil {
			logging.Error("bootstrap: failed to load application library, excluding it", "path", path, "error", err)
			continue
		}
		libs = append(libs, lib)
	}
	logging.Info("bootstrap: application libraries loaded", "count", len(libs))
	return libs
}

func loadAppLib(path string) (*AppLib, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	globalInit, err := lookupGlobalInit(p)
	if err != nil {
		return nil, err
	}
	localInit, err := lookupLocalInit(p)
	if err != nil {
		return nil, err
	}
	localExit, err := lookupLocalExit(p)
	if err != nil {
		return nil, err
	}
	globalExit, err := lookupGlobalExit(p)
	if err != nil {
		return nil, err
	}

	return &AppLib{
		Path:       path,
		GlobalInit: globalInit,
		LocalInit:  localInit,
		LocalExit:  localExit,
		GlobalExit: globalExit,
	}, nil
}

func lookupGlobalInit(p *plugin.Plugin) (func() int, error) {
	sym, err := p.Lookup("ApplicationGlobalInit")
	if err != nil {
		return nil, fmt.Errorf("resolve ApplicationGlobalInit: %w", err)
	}
	fn, ok := sym.(func() int)
	if !ok {
		return nil, fmt.Errorf("ApplicationGlobalInit has unexpected signature")
	}
	return fn, nil
}

func lookupLocalInit(p *plugin.Plugin) (func(int), error) {
	sym, err := p.Lookup("ApplicationLocalInit")
	if err != nil {
		return nil, fmt.Errorf("resolve ApplicationLocalInit: %w", err)
	}
	fn, ok := sym.(func(int))
	if !ok {
		return nil, fmt.Errorf("ApplicationLocalInit has unexpected signature")
	}
	return fn, nil
}

func lookupLocalExit(p *plugin.Plugin) (func(int), error) {
	sym, err := p.Lookup("ApplicationLocalExit")
	if err != nil {
		return nil, fmt.Errorf("resolve ApplicationLocalExit: %w", err)
	}
	fn, ok := sym.(func(int))
	if !ok {
		return nil, fmt.Errorf("ApplicationLocalExit has unexpected signature")
	}
	return fn, nil
}

func lookupGlobalExit(p *plugin.Plugin) (func(), error) {
	sym, err := p.Lookup("ApplicationGlobalExit")
	if err != nil {
		return nil, fmt.Errorf("resolve ApplicationGlobalExit: %w", err)
	}
	fn, ok := sym.(func())
	if !ok {
		return nil, fmt.Errorf("ApplicationGlobalExit has unexpected signature")
	}
	return fn, nil
}
