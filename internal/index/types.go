package index

import "time"

// Connection is a provisioned data connection in the index service. Its ID
// correlates the connection with the resource id carried by lifecycle
// signals.
type Connection struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	State string `json:"state,omitempty"`
}

// Item is a document pushed into a connection. Upserts are keyed by ID, so
// pushing the same item twice replaces it.
type Item struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties,omitempty"`
	Content    *ItemContent   `json:"content,omitempty"`
	ACL        []ACLEntry     `json:"acl,omitempty"`
}

// ItemContent is the free-text body of an item.
type ItemContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Content types accepted by the index service.
const (
	ContentTypeText = "text"
	ContentTypeHTML = "html"
)

// ACLEntry grants or denies a principal access to an item.
type ACLEntry struct {
	Type       string `json:"type"`
	Value      string `json:"value,omitempty"`
	AccessType string `json:"accessType"`
}

const (
	ACLTypeEveryone = "everyone"
	AccessGrant     = "grant"
)

// EveryoneReadACL returns the access entry list granting universal read.
func EveryoneReadACL() []ACLEntry {
	return []ACLEntry{{Type: ACLTypeEveryone, AccessType: AccessGrant}}
}

// Activity records an interaction with an item, attributed to an actor.
type Activity struct {
	Type       string    `json:"type"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Activity types recognized by the index service.
const (
	// ActivityCreated marks the creation of the underlying record.
	ActivityCreated = "created"
	// ActivityModified marks a later change to the record.
	ActivityModified = "modified"
)
