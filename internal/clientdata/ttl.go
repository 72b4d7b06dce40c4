package clientdata

import "time"

// TTLCurrentPrice is the default lifetime of a cached market price.
// The configured PRICE_CACHE_TTL overrides it.
const TTLCurrentPrice = 10 * time.Minute

// StaleQuoteRetention is how long an expired price is kept for the stale
// read fallback before eviction.
const StaleQuoteRetention = 72 * time.Hour
