package permanent

import (
	"fmt"

	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// HazardCascadeToPlain identifies a CASCADE foreign key from a soft-deletable
// model to a model without a soft-delete column.
const HazardCascadeToPlain = "permanent.W001"

// Hazard is a relation configuration that works but may fail at delete time.
type Hazard struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Column  string `json:"column"`
	Target  string `json:"target"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
}

func (h Hazard) String() string {
	return fmt.Sprintf("%s: %s\n\tHINT: %s", h.ID, h.Message, h.Hint)
}

// CheckRelations reports every CASCADE edge whose source is soft-deletable
// and whose target is not. Physically deleting the target would leave the
// soft-deleted source rows referencing nothing.
func CheckRelations(g *registry.Graph) []Hazard {
	var hazards []Hazard
	for _, edge := range g.Edges() {
		if edge.Disposition != schema.Cascade {
			continue
		}
		source, ok := g.Table(edge.Source)
		if !ok || !source.IsSoftDeletable() {
			continue
		}
		target, ok := g.Table(edge.Target)
		if !ok || target.IsSoftDeletable() {
			continue
		}
		hazards = append(hazards, Hazard{
			ID:      HazardCascadeToPlain,
			Source:  source.Name,
			Column:  edge.Column,
			Target:  target.Name,
			Message: fmt.Sprintf("%s.%s has CASCADE to %s, which is not soft-deletable", source.Name, edge.Column, target.Name),
			Hint: fmt.Sprintf("deleting a %s row fails or removes soft-deleted %s rows; "+
				"make %s soft-deletable, or use onDelete:setnull on a nullable column, or onDelete:noaction",
				target.Name, source.Name, target.Name),
		})
	}
	return hazards
}
