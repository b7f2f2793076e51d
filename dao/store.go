package dao

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/piwdev/member-management-kiro-sub000/store"
)

// Store bundles the Neo4j DAOs into the full persistence surface. The three
// DAOs share one driver and one session-per-call discipline, so embedding is
// all the glue they need.
type Store struct {
	*PolicyDAO
	*OverrideDAO
	*AuditDAO
}

var _ store.Store = (*Store)(nil)

func NewStore(driver neo4j.Driver) *Store {
	return &Store{
		PolicyDAO:   NewPolicyDAO(driver),
		OverrideDAO: NewOverrideDAO(driver),
		AuditDAO:    NewAuditDAO(driver),
	}
}
