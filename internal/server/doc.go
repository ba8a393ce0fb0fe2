// Package server hosts the Fiber HTTP service, the request middleware chain and
// the upstream HTTP client used by the worker's network stack.
// It builds the edge application around an injected ProxyHandler so that tests
// can swap the worker-backed handler for fakes, and keeps the /-/ prefix free
// for diagnostics routes registered by the routes package.
package server
