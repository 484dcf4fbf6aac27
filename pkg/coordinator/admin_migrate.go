package coordinator

import (
	"context"

	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// AdminMigrate moves key to toTier immediately, bypassing the policy
// evaluator. Unlike Put's forced-eviction retry, AdminMigrate never
// evicts on toTier's behalf: if toTier has no room it fails with
// NoCapacity and key stays exactly where it was.
func (s *Store) AdminMigrate(ctx context.Context, key string, toTier tstypes.Tier) (err error) {
	defer s.trackRequest("admin_migrate", metrics.NewTimer(), &err)

	header, ok := s.table.Lookup(key)
	if !ok || header.State == tstypes.StateTombstone {
		return tserr.NotFound
	}
	if header.Tier == toTier {
		return nil
	}
	if _, ok := s.backends[toTier]; !ok {
		return tserr.InvalidArgument
	}
	capacity, _, _ := s.accountant.Stats(toTier)
	if header.Size > capacity {
		return tserr.InvalidArgument
	}

	_, err = s.engine.MigrateNow(ctx, header, toTier, tstypes.ReasonAdmin)
	return err
}
