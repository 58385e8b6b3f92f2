package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/brightpath-hq/brightpath/platform/go/persistence"
)

// OrgProvisioner resolves an organization for a signup attempt, creating it
// on first contact. The slug uniqueness constraint is the only arbiter under
// concurrent callers: losing the insert race means the row already exists.
type OrgProvisioner struct {
	store  OrgStore
	logger *zap.Logger
}

// NewOrgProvisioner constructs an OrgProvisioner.
func NewOrgProvisioner(store OrgStore, logger *zap.Logger) *OrgProvisioner {
	if store == nil {
		panic("org store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrgProvisioner{store: store, logger: logger}
}

// GetOrCreate returns the organization for slug, inserting it when absent.
// Retries and concurrent callers converge on the same row.
func (p *OrgProvisioner) GetOrCreate(ctx context.Context, name, slug string) (Organization, error) {
	normalized, err := persistence.NormalizeSlug(slug)
	if err != nil {
		return Organization{}, err
	}

	org, err := p.store.FindBySlug(ctx, normalized)
	if err == nil {
		p.logger.Info("organization resolved",
			zap.String("org_id", org.ID.String()),
			zap.String("slug", normalized),
			zap.Bool("created", false),
		)
		return org, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Organization{}, fmt.Errorf("lookup organization by slug %q: %w", normalized, err)
	}

	org, err = p.store.Create(ctx, CreateOrgParams{Name: name, Slug: normalized})
	if err == nil {
		p.logger.Info("organization resolved",
			zap.String("org_id", org.ID.String()),
			zap.String("slug", normalized),
			zap.Bool("created", true),
		)
		return org, nil
	}
	if !errors.Is(err, ErrConflict) {
		return Organization{}, fmt.Errorf("create organization %q: %w", normalized, err)
	}

	// Lost the insert race; the winner's row is the one we want.
	org, err = p.store.FindBySlug(ctx, normalized)
	if err != nil {
		return Organization{}, fmt.Errorf("refetch organization %q after conflict: %w", normalized, err)
	}

	p.logger.Info("organization resolved",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", normalized),
		zap.Bool("created", false),
	)
	return org, nil
}
