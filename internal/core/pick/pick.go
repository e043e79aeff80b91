// Package pick provides the pure selection algorithm for choosing one device
// from a discovery result. All functions are pure with no I/O.
package pick

import (
	"errors"
	"fmt"
	"strings"

	"github.com/castforge/castforge/internal/core/domain"
)

// =============================================================================
// Selection Errors
// =============================================================================

var (
	// ErrNoCandidates is returned when discovery produced no devices.
	ErrNoCandidates = errors.New("no devices discovered")

	// ErrNoMatch is returned when no device matches the query.
	ErrNoMatch = errors.New("no device matches")

	// ErrAmbiguous is returned when a query matches more than one device.
	ErrAmbiguous = errors.New("query matches multiple devices")
)

// =============================================================================
// Selection
// =============================================================================

// Device selects one device from candidates.
//
// With an empty query, a single candidate is selected; more than one is
// ambiguous. With a query, matching is tried in order of strength:
//
//  1. exact address match
//  2. exact display-name match (case-sensitive)
//  3. case-insensitive substring of the display name, if unique
//
// The weakest tier is only consulted when the stronger ones matched nothing,
// so "Living" selects "Living Room" even when another device's serial happens
// to contain the same text.
func Device(candidates []domain.Device, query string) (domain.Device, error) {
	if len(candidates) == 0 {
		return domain.Device{}, ErrNoCandidates
	}

	if query == "" {
		if len(candidates) == 1 {
			return candidates[0], nil
		}
		return domain.Device{}, fmt.Errorf("%w: %s", ErrAmbiguous, nameList(candidates))
	}

	for _, dev := range candidates {
		if dev.Address == query {
			return dev, nil
		}
	}
	for _, dev := range candidates {
		if dev.Name == query {
			return dev, nil
		}
	}

	var matches []domain.Device
	needle := strings.ToLower(query)
	for _, dev := range candidates {
		if strings.Contains(strings.ToLower(dev.Name), needle) {
			matches = append(matches, dev)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return domain.Device{}, fmt.Errorf("%w: %q (candidates: %s)", ErrNoMatch, query, nameList(candidates))
	default:
		return domain.Device{}, fmt.Errorf("%w: %q (%s)", ErrAmbiguous, query, nameList(matches))
	}
}

func nameList(devices []domain.Device) string {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = fmt.Sprintf("%s (%s)", d.Name, d.Address)
	}
	return strings.Join(names, ", ")
}
