// Package query contains the domain types of the query cache: cache keys,
// tags, result snapshots, and query/mutation definitions.
package query

// TagType names a family of cached data.
type TagType string

// Tag types provided by the admin API endpoints.
const (
	TagUser         TagType = "User"
	TagUsers        TagType = "Users"
	TagApplications TagType = "Applications"
	TagDashboard    TagType = "Dashboard"
)

// Tag labels a cache entry or names what a mutation invalidates.
// A Tag with an empty ID refers to the whole type.
type Tag struct {
	Type TagType
	ID   string
}

// TypeTag returns the tag covering every entry of the given type.
func TypeTag(t TagType) Tag {
	return Tag{Type: t}
}

// IDTag returns the tag for a single entity of the given type.
func IDTag(t TagType, id string) Tag {
	return Tag{Type: t, ID: id}
}

// String renders the tag as Type or Type:ID.
func (t Tag) String() string {
	if t.ID == "" {
		return string(t.Type)
	}
	return string(t.Type) + ":" + t.ID
}

// Invalidates reports whether invalidating t marks an entry that provides
// the given tag. A type-wide tag matches every tag of that type; a tag
// with an ID matches only the same type and ID.
func (t Tag) Invalidates(provided Tag) bool {
	if t.Type != provided.Type {
		return false
	}
	return t.ID == "" || t.ID == provided.ID
}

// Overlaps reports whether any invalidation tag matches any provided tag.
func Overlaps(invalidated, provided []Tag) bool {
	for _, inv := range invalidated {
		for _, p := range provided {
			if inv.Invalidates(p) {
				return true
			}
		}
	}
	return false
}
