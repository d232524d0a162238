/*
resource.go - Resource type registration and lookup

PURPOSE:
  Lets domain packages register their resource types so storage can turn a
  persisted string back into the concrete type.

USAGE:
  // In leads/types.go
  func init() {
      generic.RegisterResource(CategoryA)
      generic.RegisterResource(CategoryB)
  }

  // In store/sqlite
  resource := generic.GetOrCreateResource("pme")  // leads.CategoryA
*/
package generic

import "sync"

var (
	resourceRegistry = make(map[string]ResourceType)
	registryMu       sync.RWMutex
)

// RegisterResource adds a resource type to the global registry.
func RegisterResource(r ResourceType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resourceRegistry[r.ResourceID()] = r
}

// LookupResource finds a registered resource type by ID, or nil.
func LookupResource(id string) ResourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resourceRegistry[id]
}

// StringResource is a fallback for IDs with no registered type.
type StringResource struct {
	ID     string
	Domain string
}

func (r StringResource) ResourceID() string     { return r.ID }
func (r StringResource) ResourceDomain() string { return r.Domain }

// GetOrCreateResource looks up a resource type, or returns a StringResource.
func GetOrCreateResource(id string) ResourceType {
	if r := LookupResource(id); r != nil {
		return r
	}
	return StringResource{ID: id, Domain: "unknown"}
}
