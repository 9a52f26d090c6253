// Package main hosts the tdsharvest entrypoint.
//
// Architecture overview:
//   - Fetching: every HTTP GET goes through the Colly-based fetcher, optionally
//     throttled per host by the rate limiter. Non-2xx responses are returned with
//     their status so callers decide what a failure means.
//   - index: catalog.Walker lists dataset landing pages on an HTML catalog,
//     catalog.Resolver finds NcML descriptor links on each, ncml.Extractor turns
//     each descriptor into an attribute record and the configured index store
//     (sqlite, postgres or memory) persists it.
//   - harvest: thredds.Crawler recursively reads catalog.xml documents, the
//     selected service endpoints are reaped into a mirrored directory tree, and
//     the bookkeeper rewrites the crawl results, retry and success files.
//   - Configuration & plumbing: Viper populates config from files, env
//     (TDSHARVEST_*) and flags; zap provides structured logging; Prometheus
//     metrics are served on /metrics when metrics.addr is set.
//
// Exit status: 0 on success, 1 when the catalog cannot be fetched or crawled,
// 2 when the target directory cannot be created, 3 for configuration errors.
package main
