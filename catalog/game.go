package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field names a free-text attribute of a Game.
type Field string

const (
	FieldName      Field = "name"
	FieldSummary   Field = "summary"
	FieldStoryline Field = "storyline"
)

// IndexedFields are the text fields embedded for every game, in processing order.
var IndexedFields = []Field{FieldName, FieldSummary, FieldStoryline}

// QueryFields is the field list requested from the metadata source.
var QueryFields = []string{"id", "name", "summary", "storyline", "url"}

// Game is one catalog record as returned by the metadata source.
type Game struct {
	ID        int64  `json:"id"`
	Name      string `json:"name,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Storyline string `json:"storyline,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Decode parses and validates a queued game payload.
func Decode(data []byte) (*Game, error) {
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks the record has a source identifier.
func (g *Game) Validate() error {
	if g.ID <= 0 {
		return ErrMissingID
	}
	return nil
}

// Text returns the raw value of field, or "" for unknown fields.
func (g *Game) Text(field Field) string {
	switch field {
	case FieldName:
		return g.Name
	case FieldSummary:
		return g.Summary
	case FieldStoryline:
		return g.Storyline
	default:
		return ""
	}
}

// HasText reports whether field is present and holds more than whitespace.
func (g *Game) HasText(field Field) bool {
	return strings.TrimSpace(g.Text(field)) != ""
}
