package sim

import "github.com/rs/zerolog"

// bestEffort runs a recoverable operation and substitutes the fallback on
// failure. It is the single place where the degraded-default policy lives:
// outline fetches, action normalization, and session refreshes log the error
// and keep the turn going instead of failing it.
func bestEffort[T any](logger zerolog.Logger, op string, fallback T, fn func() (T, error)) T {
	value, err := fn()
	if err != nil {
		logger.Warn().Err(err).Str("op", op).Msg("degraded to default")
		return fallback
	}
	return value
}
