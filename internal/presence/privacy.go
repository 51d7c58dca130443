package presence

import (
	"context"
	"fmt"

	"github.com/pscheid92/presencepulse/internal/domain"
)

// Filter answers whether a user's presence may be disclosed. Reads go
// straight to the settings collaborator; visibility is checked once per
// transition, not per frame.
type Filter struct {
	settings domain.SettingsStore
}

func NewFilter(settings domain.SettingsStore) *Filter {
	return &Filter{settings: settings}
}

// VisibilityOf returns the user's normalized visibility. Unknown values
// collapse to everyone, matching the collaborator's own default.
func (f *Filter) VisibilityOf(ctx context.Context, user domain.UserID) (domain.Visibility, error) {
	vis, err := f.settings.VisibilityOf(ctx, user)
	if err != nil {
		return "", fmt.Errorf("failed to read visibility for user %d: %w", user, err)
	}
	switch vis {
	case domain.VisibilityEveryone, domain.VisibilityApproxOnly, domain.VisibilityNobody:
		return vis, nil
	default:
		return domain.VisibilityEveryone, nil
	}
}
