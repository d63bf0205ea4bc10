package audience

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/awarenow/phishsim/internal/repository"
)

// Resolver resolves a group reference into the de-duplicated list of
// addressable member addresses. Disabled members and members without a
// usable send address are excluded. Resolution reflects membership at
// call time; the campaign audience is frozen by the dispatch engine's
// snapshot, not here.
type Resolver struct {
	groups *repository.GroupRepository
}

// NewResolver creates a group-backed resolver.
func NewResolver(database *sql.DB) *Resolver {
	return &Resolver{groups: repository.NewGroupRepository(database)}
}

// Resolve returns the addressable member addresses of a group.
func (r *Resolver) Resolve(ctx context.Context, groupID string) ([]string, error) {
	group, err := r.groups.GetByID(groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("group %s does not exist", groupID)
	}
	return r.groups.AddressableEmails(groupID)
}
