package settlement

import "context"

// NoopStore is a MatchStore that is never ready. Used when no database is
// configured and in headless tests.
type NoopStore struct{}

// Ready always reports false.
func (NoopStore) Ready() bool { return false }

// PersistMatch discards the record.
func (NoopStore) PersistMatch(_ context.Context, _ *Record) (string, error) { return "", nil }

// NoopChain is a ChainSubmitter that is never ready.
type NoopChain struct{}

// Ready always reports false.
func (NoopChain) Ready() bool { return false }

// SubmitResult discards the result.
func (NoopChain) SubmitResult(_ context.Context, _, _ string, _, _ int, _, _ string) (ChainReceipt, error) {
	return ChainReceipt{}, nil
}

// NoopRatings is a RatingService that is never ready.
type NoopRatings struct{}

// Ready always reports false.
func (NoopRatings) Ready() bool { return false }

// ComputeRatings returns no ratings.
func (NoopRatings) ComputeRatings(_ context.Context, _ *Record) (map[string]int, error) {
	return nil, nil
}
