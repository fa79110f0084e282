package models

import "fmt"

// Direction selects which edges of a node a traversal follows.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// ParseDirection validates a direction string; empty defaults to both.
func ParseDirection(value string) (Direction, error) {
	switch Direction(value) {
	case DirectionIn, DirectionOut, DirectionBoth:
		return Direction(value), nil
	case "":
		return DirectionBoth, nil
	default:
		return "", fmt.Errorf("invalid direction %q", value)
	}
}
