// Package directory resolves users, roles and permissions from static configuration.
package directory

import (
	"context"
	"sort"
	"strings"

	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// UserEntry is one configured user
type UserEntry struct {
	ID          string   `mapstructure:"id"`
	Name        string   `mapstructure:"name"`
	Email       string   `mapstructure:"email"`
	LarkOpenID  string   `mapstructure:"lark_open_id"`
	Roles       []string `mapstructure:"roles"`
	Permissions []string `mapstructure:"permissions"`
}

// Static is an in-memory port.ActorDirectory
type Static struct {
	users map[string]UserEntry
	order []string
}

// NewStatic builds a directory from configured users.
// Later entries with the same id replace earlier ones.
func NewStatic(entries []UserEntry) *Static {
	s := &Static{users: make(map[string]UserEntry, len(entries))}
	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			continue
		}
		if _, exists := s.users[e.ID]; !exists {
			s.order = append(s.order, e.ID)
		}
		s.users[e.ID] = e
	}
	return s
}

// Lookup returns the actor snapshot for userID
func (s *Static) Lookup(ctx context.Context, userID string) (*entity.Actor, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &entity.Actor{
		ID:          u.ID,
		Roles:       append([]string(nil), u.Roles...),
		Permissions: append([]string(nil), u.Permissions...),
	}, nil
}

// Members returns the ids of users matching an approver set, sorted
func (s *Static) Members(ctx context.Context, approverType entity.ApproverType, identifiers []string) ([]string, error) {
	wanted := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		wanted[id] = struct{}{}
	}

	var out []string
	for _, id := range s.order {
		u := s.users[id]
		var values []string
		switch approverType {
		case entity.ApproverTypeUser:
			values = []string{u.ID}
		case entity.ApproverTypeRole:
			values = u.Roles
		case entity.ApproverTypePermission:
			values = u.Permissions
		default:
			return nil, nil
		}
		for _, v := range values {
			if _, ok := wanted[v]; ok {
				out = append(out, u.ID)
				break
			}
		}
	}

	sort.Strings(out)
	return out, nil
}

// Contact returns delivery details for userID
func (s *Static) Contact(ctx context.Context, userID string) (*entity.Contact, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &entity.Contact{
		UserID:     u.ID,
		Name:       u.Name,
		Email:      u.Email,
		LarkOpenID: u.LarkOpenID,
	}, nil
}

// Verify interface compliance
var _ port.ActorDirectory = (*Static)(nil)
