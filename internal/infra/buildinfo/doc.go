// Package buildinfo exposes build information injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/reactq/internal/infra/buildinfo.Version=v0.3.0 \
//	  -X github.com/yndnr/reactq/internal/infra/buildinfo.Commit=abc123"
//
// When the binary was built without ldflags, Get falls back to the module
// build info recorded by the Go toolchain.
package buildinfo
