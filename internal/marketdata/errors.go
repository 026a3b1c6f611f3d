package marketdata

import "errors"

// ErrFetchFailed means the provider failed and no cached value, fresh or
// stale, was available.
var ErrFetchFailed = errors.New("market data fetch failed")

// errNoBars marks an empty bar series; it is treated like a provider failure.
var errNoBars = errors.New("no daily bars returned")
