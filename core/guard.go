/*
guard.go - Ownership and role policy check

PURPOSE:
  Single authorization primitive shared by inventory, cashless, and binder
  operations. Stateless: it only looks at the actor pair handed in by the
  session collaborator and the festival row already loaded by the caller.

POLICY:
  - An admin may operate on any festival.
  - A promoter may operate on festivals they own.
  - A cashier may operate wherever the call site explicitly allows cashiers
    (recharges, consumptions, wristband association).
*/
package core

// OwnershipGuard decides whether an actor may operate on a festival's
// resources. It holds no state; constructed once and shared.
type OwnershipGuard struct{}

func NewOwnershipGuard() *OwnershipGuard { return &OwnershipGuard{} }

// Authorize returns nil if the actor may operate on the festival, and a
// ForbiddenError otherwise. The allowed set lists the roles the call site
// accepts in addition to admin; promoters additionally must own the festival.
func (g *OwnershipGuard) Authorize(actor Actor, festival *Festival, allowed ...Role) error {
	if actor.Role == RoleAdmin {
		return nil
	}
	for _, role := range allowed {
		if actor.Role != role {
			continue
		}
		if role == RolePromoter {
			if festival.PromoterID == actor.ID {
				return nil
			}
			continue
		}
		// Cashier-level access is granted by call site, not ownership.
		return nil
	}
	return &ForbiddenError{ActorID: actor.ID, Role: actor.Role, FestivalID: festival.ID}
}
