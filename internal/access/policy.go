// Package access decides whether a principal has authority over a resource.
package access

import (
	"context"
	"fmt"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/models"
)

const (
	ActionApprove = "approve reservation"
	ActionReject  = "reject reservation"
	ActionCancel  = "cancel reservation"
)

type Policy struct {
	identities domain.IdentityLookup
	groups     domain.GroupDirectory
}

func NewPolicy(identities domain.IdentityLookup, groups domain.GroupDirectory) *Policy {
	return &Policy{identities: identities, groups: groups}
}

func (p *Policy) Principal(ctx context.Context, id int64) (*models.Principal, error) {
	principal, err := p.identities.GetPrincipal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get principal %d: %w", id, err)
	}
	return principal, nil
}

// Owns reports whether principalID owns res directly or through its owner group.
func (p *Policy) Owns(ctx context.Context, principalID int64, res *models.Resource) (bool, error) {
	switch res.OwnerType {
	case models.OwnerUser:
		return res.OwnerID == principalID, nil
	case models.OwnerGroup:
		if p.groups == nil {
			return false, nil
		}
		ok, err := p.groups.IsMember(ctx, res.OwnerID, principalID)
		if err != nil {
			return false, fmt.Errorf("failed to check group %d membership: %w", res.OwnerID, err)
		}
		return ok, nil
	default:
		return false, nil
	}
}

// HasAuthority reports whether principalID may decide on reservations of res:
// administrators always, approvers only on resources they own.
func (p *Policy) HasAuthority(ctx context.Context, principalID int64, res *models.Resource) (bool, error) {
	principal, err := p.Principal(ctx, principalID)
	if err != nil {
		return false, err
	}
	switch principal.Role {
	case models.RoleAdministrator:
		return true, nil
	case models.RoleApprover:
		return p.Owns(ctx, principalID, res)
	default:
		return false, nil
	}
}

// RequireAuthority returns *domain.AuthorizationError when HasAuthority is false.
func (p *Policy) RequireAuthority(ctx context.Context, principalID int64, res *models.Resource, action string) error {
	ok, err := p.HasAuthority(ctx, principalID, res)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.AuthorizationError{ActorID: principalID, Action: action}
	}
	return nil
}

// RequireCancel allows the requester and anyone with authority over the resource.
func (p *Policy) RequireCancel(ctx context.Context, actorID int64, r *models.Reservation, res *models.Resource) error {
	if actorID == r.RequesterID {
		return nil
	}
	return p.RequireAuthority(ctx, actorID, res, ActionCancel)
}
