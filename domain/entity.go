package domain

import "personal-ledger/shared"

// Entity is a persisted aggregate as seen by the unit of work and the stores.
// Version is the optimistic concurrency token; stores bump it on commit.
type Entity interface {
	EntityID() string
	EntityType() shared.EntityType
	Owner() string
	CurrentVersion() int
	SetVersion(v int)
}
