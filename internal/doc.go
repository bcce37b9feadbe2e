// Package internal contains the core implementation packages for pagewright.
//
// # Package Organization
//
// The internal packages are organized by functional domain, leaves first:
//
//   - types: Shared page, module and result types
//   - errors: Typed errors and the per-build failure collector
//   - logging: Structured logging on log/slog
//   - config: Configuration with viper, .env files and validation
//   - cache: Keyed state cache with expiry and single in-flight loads
//   - routes: Route patterns, page paths and route enumeration
//   - events: Per-worker event channels drained by one dispatcher
//   - modules: Client module map, import rewriting and preload lists
//   - pagestate: Page props and state modules as ES modules
//   - html: Head and body injection, debug links and minification
//   - site: The explicit context shared by one build or watch session
//   - render: Layouts, the page factory and the render worker
//   - build: The concurrent page build coordinator
//   - output: Filesystem and S3 output writers
//   - watcher: File system monitoring with debouncing and rebuilds
//   - preview: Static preview server for the output directory
//   - version: Build information
//
// # Inter-Package Communication
//
//   - The build coordinator enumerates routes and queues one job per page
//   - Render workers report pages, failures and timings as events
//   - The coordinator settles pages as events arrive, then writes them
//   - The watcher reloads the site context and asks the coordinator to rebuild
//
// Nothing reaches configuration, routes or caches through global state; a
// site.Context is passed explicitly.
package internal
