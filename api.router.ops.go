package main

import (
	"net/http/pprof"

	"github.com/julienschmidt/httprouter"
)

// Profile and trace run for the requested seconds, outside the request timeout.
const (
	ProfilePath = "/ops/debug/pprof/profile"
	TracePath   = "/ops/debug/pprof/trace"
)

// opsProfiles are the runtime profiles served under /ops/debug/pprof/.
var opsProfiles = []string{"heap", "allocs", "goroutine", "threadcreate", "block", "mutex"}

// SetupOpsRoutes injects internal operations related endpoints: configs,
// traffic stats, cache and journal introspection, maintenance mode and
// runtime debugging. Profiling endpoints need their own flag.
func (api *APIHandler) SetupOpsRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	routes := map[string]httprouter.Handle{
		"/ops/configs":     api.GetConfigs,
		"/ops/stats":       api.GetStatistics,
		"/ops/cache":       api.GetCacheStats,
		"/ops/mutations":   api.GetMutations,
		"/ops/maintenance": api.Maintenance,
		"/ops/debug/vars":  GetMemStats,
		"/ops/debug/gc":    api.RunGC,
		"/ops/debug/fos":   api.FreeOSMemory,
	}
	if api.config.ProfilerEnable {
		routes["/ops/debug/pprof/"] = api.GetProfilerIndexPage
		routes[ProfilePath] = api.GetCPUProfile
		routes[TracePath] = api.GetTraceProfile
		routes["/ops/debug/pprof/symbol"] = api.GetSymbol
		routes["/ops/debug/pprof/cmdline"] = api.GetCmdLine
		for _, name := range opsProfiles {
			routes["/ops/debug/pprof/"+name] = api.OpsHandlerWrapper(pprof.Handler(name))
		}
	}

	for path, handle := range routes {
		router.GET(path, m.ops(handle))
	}
	return router
}
