package osc

import "strings"

// Category is the closed set of address classes the controller reacts to.
type Category int

const (
	CategoryOther Category = iota
	CategoryPressure
	CategoryTemperature
)

func (c Category) String() string {
	switch c {
	case CategoryPressure:
		return "pressure"
	case CategoryTemperature:
		return "temperature"
	default:
		return "other"
	}
}

// Classify maps an address to its category by whole path segments.
// Temperatures reported by a "cpu*" segment are host readings and are not
// treated as water temperature.
func Classify(address string) Category {
	var pressure, temperature, cpu bool
	for _, seg := range strings.Split(address, "/") {
		switch {
		case seg == "pressure":
			pressure = true
		case seg == "temperature":
			temperature = true
		case strings.HasPrefix(seg, "cpu"):
			cpu = true
		}
	}
	switch {
	case pressure:
		return CategoryPressure
	case temperature && !cpu:
		return CategoryTemperature
	}
	return CategoryOther
}
