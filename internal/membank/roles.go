// Package membank implements the local memory bank: the hierarchical
// document set recording project intent and status. Documents are opaque
// text blobs; the store never parses or merges bodies.
package membank

import "time"

// Role identifies one of the nine fixed memory bank documents.
type Role string

const (
	RoleProjectBrief        Role = "projectbrief"
	RoleProductContext      Role = "productContext"
	RoleSystemPatterns      Role = "systemPatterns"
	RoleTechContext         Role = "techContext"
	RoleActiveContext       Role = "activeContext"
	RoleProgress            Role = "progress"
	RoleProjectIntelligence Role = "projectIntelligence"
	RoleRoadmap             Role = "roadmap"
	RoleTasks               Role = "tasks"
)

// AllRoles returns every role in dependency order: a role always appears
// after all of its ancestors.
func AllRoles() []Role {
	return []Role{
		RoleProjectBrief,
		RoleProductContext,
		RoleSystemPatterns,
		RoleTechContext,
		RoleActiveContext,
		RoleProgress,
		RoleProjectIntelligence,
		RoleRoadmap,
		RoleTasks,
	}
}

// parents is the fixed dependency graph, loaded once per process:
// ProjectBrief feeds the three context documents, those feed
// ActiveContext, and ActiveContext feeds the four working documents.
var parents = map[Role][]Role{
	RoleProjectBrief:        nil,
	RoleProductContext:      {RoleProjectBrief},
	RoleSystemPatterns:      {RoleProjectBrief},
	RoleTechContext:         {RoleProjectBrief},
	RoleActiveContext:       {RoleProductContext, RoleSystemPatterns, RoleTechContext},
	RoleProgress:            {RoleActiveContext},
	RoleProjectIntelligence: {RoleActiveContext},
	RoleRoadmap:             {RoleActiveContext},
	RoleTasks:               {RoleActiveContext},
}

// filenames is the fixed role -> file mapping.
var filenames = map[Role]string{
	RoleProjectBrief:        "projectbrief.md",
	RoleProductContext:      "productContext.md",
	RoleSystemPatterns:      "systemPatterns.md",
	RoleTechContext:         "techContext.md",
	RoleActiveContext:       "activeContext.md",
	RoleProgress:            "progress.md",
	RoleProjectIntelligence: "projectIntelligence.md",
	RoleRoadmap:             "roadmap.md",
	RoleTasks:               "tasks.md",
}

// Valid reports whether r is one of the nine fixed roles.
func (r Role) Valid() bool {
	_, ok := filenames[r]
	return ok
}

// Filename returns the file name for the role within the bank directory.
func (r Role) Filename() string {
	return filenames[r]
}

// Parents returns the direct ancestors of the role in the dependency
// graph. The returned slice must not be mutated.
func (r Role) Parents() []Role {
	return parents[r]
}

// Structural reports whether the role is one of the documents the
// reconciliation engine appends sync notes to.
func (r Role) Structural() bool {
	switch r {
	case RoleActiveContext, RoleProgress, RoleProjectIntelligence:
		return true
	}
	return false
}

// Document is one live memory bank document.
type Document struct {
	Role         Role
	Body         string
	LastModified time.Time
}

// StaleRoles returns roles whose document is older than any of its
// ancestors. Staleness is only ever relative to an ancestor that changed
// more recently; siblings never invalidate each other.
func StaleRoles(docs map[Role]Document) []Role {
	var stale []Role
	for _, role := range AllRoles() {
		doc, ok := docs[role]
		if !ok {
			continue
		}
		for _, parent := range role.Parents() {
			p, ok := docs[parent]
			if !ok {
				continue
			}
			if p.LastModified.After(doc.LastModified) {
				stale = append(stale, role)
				break
			}
		}
	}
	return stale
}
