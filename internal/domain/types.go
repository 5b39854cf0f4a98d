// Package domain defines the normalized types the relay works with.
// They mirror the parts of the GitHub Projects v2 graph the relay reads,
// independent of the GraphQL response shapes.
package domain

// StatusFieldName is the name of the single-select field that holds the pipeline stage.
const StatusFieldName = "Status"

// DefaultRequiredStatusOptions are the option names a project must offer to be
// considered valid. They double as the set of accepted destination pipelines.
var DefaultRequiredStatusOptions = []string{"Todo", "In Progress", "In Review", "Done"}

// RepositorySnapshot is the read model fetched once per inbound event.
// It is mutated in place while the event is processed and then discarded.
type RepositorySnapshot struct {
	ID      string
	Name    string
	Owner   string // Owner login
	OwnerID string // Owner node ID (used as the owner of copied projects)

	// RepositoryProjects are the boards linked to the repository, in API order.
	RepositoryProjects []*Project

	Issue Issue
}

// Issue is the issue the event refers to.
type Issue struct {
	ID     string // Issue node ID
	Title  string
	Number int

	// LinkedProjects are the boards the issue is currently a card in.
	// They may belong to other repositories or to the owner directly.
	LinkedProjects []*Project
}

// Project represents a GitHub Project v2 board.
type Project struct {
	ID     string
	Number int
	Title  string
	URL    string

	// Status is the schema of the "Status" single-select field.
	// A nil schema is treated as StatusAbsent.
	Status StatusSchema

	Items []*Item
}

// Item is a card inside a project.
type Item struct {
	ID string

	// ContentID is the node ID of the underlying issue or pull request.
	// Empty for drafts, private items, and synthesized items of older snapshots.
	ContentID string

	FieldValues []FieldValue
}

// FieldValueKind distinguishes the field value variants the relay reads.
type FieldValueKind string

const (
	FieldValueText         FieldValueKind = "text"
	FieldValueSingleSelect FieldValueKind = "singleSelect"
)

// FieldValue is one value of an item. Text values carry Text; single-select
// values carry Name and OptionID.
type FieldValue struct {
	Kind     FieldValueKind
	Text     string
	Name     string
	OptionID string
}

// Option is one choice of a single-select field.
type Option struct {
	ID   string
	Name string
}

// TextValues returns the text field values of the item, in order.
func (i *Item) TextValues() []string {
	var out []string
	for _, v := range i.FieldValues {
		if v.Kind == FieldValueText {
			out = append(out, v.Text)
		}
	}
	return out
}

// HasText reports whether any text field value of the item equals s.
func (i *Item) HasText(s string) bool {
	for _, v := range i.FieldValues {
		if v.Kind == FieldValueText && v.Text == s {
			return true
		}
	}
	return false
}

// StatusOptionID returns the option ID of the item's status value, if it has one
// among the given options.
func (i *Item) StatusOptionID(options []Option) string {
	for _, v := range i.FieldValues {
		if v.Kind != FieldValueSingleSelect {
			continue
		}
		for _, opt := range options {
			if opt.ID == v.OptionID {
				return v.OptionID
			}
		}
	}
	return ""
}

// AddLinkedIssue records a newly linked issue as an item of the project so
// that lookups later in the same event find it without a re-fetch.
func (p *Project) AddLinkedIssue(itemID string, issue Issue) *Item {
	item := &Item{
		ID:        itemID,
		ContentID: issue.ID,
		FieldValues: []FieldValue{
			{Kind: FieldValueText, Text: issue.Title},
		},
	}
	p.Items = append(p.Items, item)
	return item
}

// ProjectIDs returns the IDs of the given projects, in order.
func ProjectIDs(projects []*Project) []string {
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ids
}
