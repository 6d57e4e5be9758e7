// Package rescache loads web resources (stylesheets, scripts, images and HTML
// fragments) into a document and keeps their raw content in a storage adapter
// so later loads replay from storage instead of the network.
//
// Components:
//   - Storage: binds the first usable adapter from an ordered candidate list
//     (bbolt, sqlite, redis, NATS KV, bigcache, ristretto, offline bundle) and
//     turns every adapter failure into a falsy result.
//   - Cache: loads resources group by group, replaying fresh records and
//     fetching stale or missing ones through a Fetcher.
//   - Registry: one Cache per configuration fingerprint. Concurrent callers
//     with the same configuration share a single initialization.
//
// Generations guard persistence: Load snapshots a URL's generation before it
// reads storage and writes a fetched record back only if Remove has not bumped
// the generation in the meantime.
//
//	reg := rescache.NewRegistry(rescache.RegistryOptions{Fetcher: f, Injector: doc})
//	err := reg.Load(ctx, []rescache.Resource{{URL: "/app.css"}, {URL: "/app.js", Group: 1}}, cfg)
package rescache
