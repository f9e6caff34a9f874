// Package models - Classification heads and model descriptions.
package models

// Head identifies one label group scored by the model.
type Head int

const (
	// HeadDaily is the daily mood head.
	HeadDaily Head = iota
	// HeadGender is the gender style head.
	HeadGender
	// HeadEmbellishment is the embellishment head.
	HeadEmbellishment
)

// NumHeads is the number of classification heads of the model.
const NumHeads = 3

// Heads lists every head in report order.
var Heads = [NumHeads]Head{HeadDaily, HeadGender, HeadEmbellishment}

type headInfo struct {
	name    string
	title   string
	column  string
	classes int
}

var heads = [NumHeads]headInfo{
	HeadDaily:         {name: "daily", title: "Daily", column: "Daily", classes: 6},
	HeadGender:        {name: "gender", title: "Gender", column: "Gender", classes: 5},
	HeadEmbellishment: {name: "embellishment", title: "Embellishment", column: "Embellishment", classes: 3},
}

// String returns the lower case name of the head.
func (h Head) String() string {
	if !h.Valid() {
		return "unknown"
	}
	return heads[h].name
}

// Title returns the name used in the summary line.
func (h Head) Title() string {
	if !h.Valid() {
		return "Unknown"
	}
	return heads[h].title
}

// Column returns the manifest column holding the label of the head.
func (h Head) Column() string {
	if !h.Valid() {
		return ""
	}
	return heads[h].column
}

// NumClasses returns the number of classes predicted by the head.
func (h Head) NumClasses() int {
	if !h.Valid() {
		return 0
	}
	return heads[h].classes
}

// Valid reports whether h is a known head.
func (h Head) Valid() bool {
	return h >= 0 && int(h) < NumHeads
}
