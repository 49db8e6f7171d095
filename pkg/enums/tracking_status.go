package enums

import "fmt"

// TrackingStatus labels a tracking entry within an order item's append-only log.
type TrackingStatus string

const (
	TrackingStatusLabelCreated TrackingStatus = "label_created"
	TrackingStatusInTransit    TrackingStatus = "in_transit"
	TrackingStatusDelivered    TrackingStatus = "delivered"
)

var validTrackingStatuses = []TrackingStatus{
	TrackingStatusLabelCreated,
	TrackingStatusInTransit,
	TrackingStatusDelivered,
}

// String implements fmt.Stringer.
func (s TrackingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TrackingStatus.
func (s TrackingStatus) IsValid() bool {
	for _, candidate := range validTrackingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTrackingStatus converts raw input into a TrackingStatus.
func ParseTrackingStatus(value string) (TrackingStatus, error) {
	for _, candidate := range validTrackingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tracking status %q", value)
}
