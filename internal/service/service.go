// Package service implements the business rules on top of the repository.
// Operations that write to a ledger take the acting user as an explicit
// parameter, so every movement and audit line carries who did it.
package service

import (
	"log"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/store"
)

const (
	categoryTreeKey        = "category-tree"
	defaultCategoryTreeTTL = 5 * time.Minute
)

type Service struct {
	repo    store.Repository
	tree    cache.TreeCache
	treeTTL time.Duration
}

func New(repo store.Repository, tree cache.TreeCache) *Service {
	return NewWithTreeTTL(repo, tree, defaultCategoryTreeTTL)
}

func NewWithTreeTTL(repo store.Repository, tree cache.TreeCache, treeTTL time.Duration) *Service {
	if tree == nil {
		tree = cache.NoopTreeCache{}
	}
	if treeTTL <= 0 {
		treeTTL = defaultCategoryTreeTTL
	}
	return &Service{
		repo:    repo,
		tree:    tree,
		treeTTL: treeTTL,
	}
}

func (s *Service) logAudit(actorUsername string, action string, entityType string, entityID string, detail string) {
	if actorUsername == "" {
		actorUsername = "system"
	}
	log.Printf("[audit] actor=%s action=%s entity=%s/%s %s", actorUsername, action, entityType, entityID, detail)
}
