// Package store holds one project board in memory and groups its cards into
// status columns. It backs the inspect report, including previews of a
// status move that has not been sent to GitHub.
package store

import (
	"errors"
	"fmt"

	"github.com/governify/zh2gh/internal/domain"
)

var (
	// ErrNoProject indicates no project has been set in the store.
	ErrNoProject = errors.New("no project set")
	// ErrNoStatusField indicates the project has no "Status" field to group by.
	ErrNoStatusField = errors.New("project has no status field")
	// ErrCardNotFound indicates the requested card does not exist.
	ErrCardNotFound = errors.New("card not found")
	// ErrInvalidOption indicates an option ID the status field does not offer.
	ErrInvalidOption = errors.New("invalid option ID")
)

// NoStatusKey is the special key used for cards without a status value.
const NoStatusKey = "_no_status_"

// Store manages the in-memory state of one project board.
type Store struct {
	project *domain.Project
	status  domain.StatusPresent
	grouped bool

	// Card storage, in project order
	cards map[string]*domain.Item
	order []string

	// Status of each card: ItemID -> optionID. Kept apart from the items so
	// previews never touch the snapshot.
	optionOf map[string]string

	// Column mapping: optionID -> []ItemID
	// Special key NoStatusKey holds cards without a status value
	columns map[string][]string
}

// New creates a new empty Store instance.
func New() *Store {
	return &Store{
		cards:    make(map[string]*domain.Item),
		optionOf: make(map[string]string),
		columns:  make(map[string][]string),
	}
}

// Load replaces the store contents with the project and its cards.
func (s *Store) Load(project *domain.Project) {
	s.project = project
	s.status, s.grouped = project.StatusField()

	s.cards = make(map[string]*domain.Item, len(project.Items))
	s.optionOf = make(map[string]string, len(project.Items))
	s.order = s.order[:0]
	for _, item := range project.Items {
		if _, exists := s.cards[item.ID]; !exists {
			s.order = append(s.order, item.ID)
		}
		s.cards[item.ID] = item
		s.optionOf[item.ID] = item.StatusOptionID(s.status.Options)
	}
	s.rebuildColumns()
}

// StatusField returns the status schema the columns are built from.
func (s *Store) StatusField() (domain.StatusPresent, bool) {
	return s.status, s.grouped
}

// GetCard retrieves a card by ItemID, returning ErrCardNotFound if not found.
func (s *Store) GetCard(itemID string) (*domain.Item, error) {
	card, exists := s.cards[itemID]
	if !exists {
		return nil, ErrCardNotFound
	}
	return card, nil
}

// CardStatus returns the option ID of a card's current column, or "" when
// the card has no status.
func (s *Store) CardStatus(itemID string) (string, error) {
	if _, exists := s.cards[itemID]; !exists {
		return "", ErrCardNotFound
	}
	return s.optionOf[itemID], nil
}

// GetColumns returns the column structure as a map of optionID -> []ItemID.
// The special key NoStatusKey contains cards without a status value.
// Returns ErrNoStatusField if the project has no status field.
func (s *Store) GetColumns() (map[string][]string, error) {
	if s.project == nil {
		return nil, ErrNoProject
	}
	if !s.grouped {
		return nil, ErrNoStatusField
	}

	result := make(map[string][]string, len(s.columns))
	for optionID, itemIDs := range s.columns {
		ids := make([]string, len(itemIDs))
		copy(ids, itemIDs)
		result[optionID] = ids
	}
	return result, nil
}

// GetColumnCardIDs returns the card IDs for a specific column (optionID or NoStatusKey).
func (s *Store) GetColumnCardIDs(optionID string) []string {
	ids, exists := s.columns[optionID]
	if !exists {
		return []string{}
	}
	result := make([]string, len(ids))
	copy(result, ids)
	return result
}

// Column is one status column with its card count.
type Column struct {
	OptionID string
	Name     string
	Count    int
}

// ColumnCounts returns the columns in status option order, followed by a
// "No Status" column when some cards have no status.
func (s *Store) ColumnCounts() ([]Column, error) {
	if _, err := s.GetColumns(); err != nil {
		return nil, err
	}

	cols := make([]Column, 0, len(s.status.Options)+1)
	for _, opt := range s.status.Options {
		cols = append(cols, Column{OptionID: opt.ID, Name: opt.Name, Count: len(s.columns[opt.ID])})
	}
	if n := len(s.columns[NoStatusKey]); n > 0 {
		cols = append(cols, Column{OptionID: NoStatusKey, Name: "No Status", Count: n})
	}
	return cols, nil
}

// MoveCard moves a card to another column in memory only. It is how a
// pending status update is previewed.
func (s *Store) MoveCard(itemID, optionID string) error {
	if _, exists := s.cards[itemID]; !exists {
		return ErrCardNotFound
	}
	if err := s.ValidateOption(optionID); err != nil {
		return err
	}

	s.optionOf[itemID] = optionID
	s.rebuildColumns()
	return nil
}

// ValidateOption checks if an option ID is valid for the status field.
// Returns ErrNoStatusField if there is none, ErrInvalidOption if invalid.
func (s *Store) ValidateOption(optionID string) error {
	if !s.grouped {
		return ErrNoStatusField
	}

	// Empty string is valid (represents "no status")
	if optionID == "" {
		return nil
	}

	for _, option := range s.status.Options {
		if option.ID == optionID {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrInvalidOption, optionID)
}

// rebuildColumns reconstructs the column mapping from current cards,
// keeping project order within each column.
func (s *Store) rebuildColumns() {
	s.columns = make(map[string][]string)

	for _, itemID := range s.order {
		key := s.optionOf[itemID]
		if key == "" {
			key = NoStatusKey
		}
		s.columns[key] = append(s.columns[key], itemID)
	}
}
