package model

import "time"

// Project represents a row in the `projects` table together with its
// member set from `project_members`. The owner is never removed by a
// membership change; deleting the owner is restricted by the schema.
type Project struct {
	ID        uint64    // projects.id
	Name      string    // projects.name
	OwnerID   uint64    // projects.owner_id (RESTRICT)
	Owner     UserRef   // resolved owner, filled by list/get queries
	Members   []UserRef // project_members joined with users
	CreatedAt time.Time // projects.created_at
}

// MemberIDs returns the ids of the project's members in stored order.
func (p *Project) MemberIDs() []uint64 {
	ids := make([]uint64, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// ProjectFilter narrows project listings. Empty fields are ignored and
// all string filters are case-insensitive substring matches.
type ProjectFilter struct {
	Name        string
	OwnerEmail  string
	MemberEmail string
}
