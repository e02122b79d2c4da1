package source

import (
	"errors"
	"fmt"
	"strings"
)

// Item represents a single title record returned by a catalog backend, validated at the boundary.
type Item struct {
	SourceKey  string   `json:"source_key"`
	SourceName string   `json:"source_name"`
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Year       string   `json:"year"`
	TypeName   string   `json:"type_name"`
	Poster     string   `json:"poster"`
	Episodes   []string `json:"episodes"`
}

func (i *Item) String() string {
	if i.Year != "" {
		return fmt.Sprintf("%s (%s)", i.Title, i.Year)
	}
	return i.Title
}

// Validate enforces the required-fields contract for backend records.
// Records failing validation are rejected at the boundary instead of
// propagating half-empty values into ranking logic.
func (i *Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("record missing id")
	}
	if strings.TrimSpace(i.Title) == "" {
		return errors.New("record missing title")
	}
	if len(i.Episodes) == 0 {
		return errors.New("record has no playable episodes")
	}
	for idx, url := range i.Episodes {
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("record episode %d has an empty URL", idx+1)
		}
	}
	return nil
}
