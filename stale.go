package rescache

import "time"

// Stale reports whether rec must be refetched for res, and why.
// The descriptor's lifetime wins over the record's when it is set.
func Stale(rec Record, res Resource, now time.Time) (bool, string) {
	lifetime := res.lifetimeMS()
	if lifetime == 0 {
		lifetime = rec.Content.Lifetime
	}
	switch {
	case lifetime < 0:
		return true, "revalidate"
	case rec.Content.Version != res.Version:
		return true, "version"
	case rec.Content.LastMod != res.LastMod:
		return true, "lastmod"
	case lifetime > 0 && now.UnixMilli()-rec.Content.StoredAt > lifetime:
		return true, "expired"
	}
	return false, ""
}
