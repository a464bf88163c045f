/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package profiling exposes the runtime profiles over HTTP.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"
)

// profiles are the pre-defined runtime profiles:
// https://cs.opensource.google/go/go/+/refs/tags/go1.24.4:src/runtime/pprof/pprof.go;l=108
var profiles = []string{
	"heap",
	"goroutine",
	"allocs",
	"threadcreate",
	"block",
	"mutex",
}

// Handlers returns the pprof handlers keyed by path, ready to be mounted on the metrics server. It also enables
// mutex and block profiling, which are off by default.
func Handlers() map[string]http.Handler {
	handlers := make(map[string]http.Handler, len(profiles))
	for _, p := range profiles {
		handlers["/debug/pprof/"+p] = pprof.Handler(p)
	}

	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)

	return handlers
}
