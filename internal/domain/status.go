package domain

// StatusSchema describes whether a project has a "Status" single-select field.
// It is a closed sum type: the only implementations are StatusPresent and
// StatusAbsent, and callers switch on the concrete type.
type StatusSchema interface {
	isStatusSchema()
}

// StatusPresent is the schema of a project that has a "Status" field.
type StatusPresent struct {
	FieldID string
	Options []Option
}

// StatusAbsent marks a project without a "Status" single-select field.
type StatusAbsent struct{}

func (StatusPresent) isStatusSchema() {}
func (StatusAbsent) isStatusSchema()  {}

// Option returns the option with the given name.
func (s StatusPresent) Option(name string) (Option, bool) {
	for _, opt := range s.Options {
		if opt.Name == name {
			return opt, true
		}
	}
	return Option{}, false
}

// OptionNames returns the option names in their configured order.
func (s StatusPresent) OptionNames() []string {
	names := make([]string, 0, len(s.Options))
	for _, opt := range s.Options {
		names = append(names, opt.Name)
	}
	return names
}

// StatusField returns the project's status schema when present.
// A nil project or a project built without a schema reports absent.
func (p *Project) StatusField() (StatusPresent, bool) {
	if p == nil {
		return StatusPresent{}, false
	}
	present, ok := p.Status.(StatusPresent)
	return present, ok
}
