package catalog

import (
	"strings"

	"github.com/stockwatch/alert-composer/internal/model"
)

// Catalog is an immutable, indexed list of indicator definitions
type Catalog struct {
	indicators []model.Indicator
	byName     map[string]int
	byDisplay  map[string][]int
}

// New indexes indicators. The slice is copied.
func New(indicators []model.Indicator) *Catalog {
	c := &Catalog{
		indicators: append([]model.Indicator(nil), indicators...),
		byName:     make(map[string]int, len(indicators)),
		byDisplay:  make(map[string][]int, len(indicators)),
	}
	for i, ind := range c.indicators {
		if _, dup := c.byName[ind.Name]; !dup {
			c.byName[ind.Name] = i
		}
		key := strings.ToLower(strings.TrimSpace(ind.DisplayName))
		if key != "" {
			c.byDisplay[key] = append(c.byDisplay[key], i)
		}
	}
	return c
}

// Resolve finds an indicator by its name, falling back to its display name.
// A display name shared by several indicators resolves to nothing.
func (c *Catalog) Resolve(name string) (model.Indicator, bool) {
	if c == nil || name == "" {
		return model.Indicator{}, false
	}
	if i, ok := c.byName[name]; ok {
		return c.indicators[i], true
	}
	matches := c.byDisplay[strings.ToLower(strings.TrimSpace(name))]
	if len(matches) != 1 {
		return model.Indicator{}, false
	}
	return c.indicators[matches[0]], true
}

// Indicators returns the catalog contents in backend order
func (c *Catalog) Indicators() []model.Indicator {
	if c == nil {
		return nil
	}
	return append([]model.Indicator(nil), c.indicators...)
}

// Len returns the number of indicators
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.indicators)
}
