package index

// Schema declares the item properties a connection accepts. It is registered
// once per connection through RegisterSchema before any items are pushed.
type Schema struct {
	BaseType   string           `json:"baseType"`
	Properties []SchemaProperty `json:"properties"`
}

// SchemaProperty describes one indexed field and how it may be used in
// queries.
type SchemaProperty struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	IsSearchable  bool     `json:"isSearchable,omitempty"`
	IsQueryable   bool     `json:"isQueryable,omitempty"`
	IsRetrievable bool     `json:"isRetrievable,omitempty"`
	IsRefinable   bool     `json:"isRefinable,omitempty"`
	Labels        []string `json:"labels,omitempty"`
}

// DefaultSchema returns the schema registered for connector connections. It
// covers the fields produced by the repository and issue transforms.
func DefaultSchema() Schema {
	return Schema{
		BaseType: "item",
		Properties: []SchemaProperty{
			{Name: "title", Type: "string", IsSearchable: true, IsRetrievable: true, Labels: []string{"title"}},
			{Name: "url", Type: "string", IsRetrievable: true, Labels: []string{"url"}},
			{Name: "kind", Type: "string", IsQueryable: true, IsRetrievable: true, IsRefinable: true},
			{Name: "state", Type: "string", IsQueryable: true, IsRetrievable: true, IsRefinable: true},
			{Name: "description", Type: "string", IsSearchable: true, IsRetrievable: true},
			{Name: "labels", Type: "stringCollection", IsSearchable: true, IsRetrievable: true},
			{Name: "assignees", Type: "stringCollection", IsQueryable: true, IsRetrievable: true},
			{Name: "author", Type: "string", IsQueryable: true, IsRetrievable: true},
			{Name: "language", Type: "string", IsQueryable: true, IsRetrievable: true, IsRefinable: true},
			{Name: "updatedAt", Type: "dateTime", IsQueryable: true, IsRetrievable: true, Labels: []string{"lastModifiedDateTime"}},
		},
	}
}
