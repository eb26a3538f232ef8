//go:build integration

// Package integration runs mappack against real backing services.
//
// These tests require Docker and start an OCI registry, MinIO and Redis
// using testcontainers. Set SKIP_DOCKER_TESTS=1 to skip them.
// Run with: go test -tags=integration ./integration/...
package integration
