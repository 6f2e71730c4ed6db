package models

// CustomFieldValue mirrors the paperless-ngx custom field value shape.
type CustomFieldValue struct {
	Field int         `json:"field"`
	Value interface{} `json:"value"`
}

// Document is a read-only snapshot of a paperless-ngx document taken for one
// processing attempt. The store owns the record; the snapshot is never mutated.
type Document struct {
	ID           int
	Title        string
	Content      string
	Tags         []int
	CustomFields []CustomFieldValue
}

// HasTag reports whether the snapshot carries the given tag id.
func (d Document) HasTag(tagID int) bool {
	for _, t := range d.Tags {
		if t == tagID {
			return true
		}
	}
	return false
}

// WithoutTag returns the snapshot's tag set minus the given tag id.
func (d Document) WithoutTag(tagID int) []int {
	tags := make([]int, 0, len(d.Tags))
	for _, t := range d.Tags {
		if t != tagID {
			tags = append(tags, t)
		}
	}
	return tags
}
