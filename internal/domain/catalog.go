package domain

// TicketStatus is one entry of the data-driven status catalog.
type TicketStatus struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	IsClosed  bool   `yaml:"is_closed"`
	IsDefault bool   `yaml:"is_default"`
	SortOrder int    `yaml:"sort_order"`
}

// TicketCategory classifies tickets.
type TicketCategory struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Active bool   `yaml:"active"`
}

// TicketPriority ranks urgency; lower rank is more urgent.
type TicketPriority struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Rank int    `yaml:"rank"`
}

// Catalog groups the lookup tables used by tickets.
type Catalog struct {
	Statuses   []TicketStatus   `yaml:"statuses"`
	Categories []TicketCategory `yaml:"categories"`
	Priorities []TicketPriority `yaml:"priorities"`
}

// DefaultStatus returns the status flagged as default.
func (c Catalog) DefaultStatus() (TicketStatus, bool) {
	for _, s := range c.Statuses {
		if s.IsDefault {
			return s, true
		}
	}
	return TicketStatus{}, false
}
