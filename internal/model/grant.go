package model

import "strconv"

// Capability is a single per-object right stored in `permission_grants`.
type Capability string

const (
	CapView        Capability = "view"
	CapUpdate      Capability = "change"
	CapDelete      Capability = "delete"
	CapManageTasks Capability = "manage_tasks" // projects only
)

// ObjectType names the kind of object a grant refers to.
type ObjectType string

const (
	ObjectProject ObjectType = "project"
	ObjectTask    ObjectType = "task"
)

// ObjectRef identifies a single grantable object.
type ObjectRef struct {
	Type ObjectType
	ID   uint64
}

func ProjectRef(id uint64) ObjectRef { return ObjectRef{Type: ObjectProject, ID: id} }
func TaskRef(id uint64) ObjectRef    { return ObjectRef{Type: ObjectTask, ID: id} }

func (o ObjectRef) String() string {
	return string(o.Type) + ":" + strconv.FormatUint(o.ID, 10)
}

// Grant is one row of `permission_grants`. The full tuple is unique.
type Grant struct {
	UserID     uint64
	Object     ObjectRef
	Capability Capability
}
