package view

import "fmt"

// HourLabels returns the gutter labels for the visible window, one per hour
// boundary from startHour through endHour inclusive.
func HourLabels(startHour, endHour int) []string {
	labels := make([]string, 0, endHour-startHour+1)
	for h := startHour; h <= endHour; h++ {
		hour := h % 24
		switch {
		case hour == 0:
			labels = append(labels, "12 AM")
		case hour == 12:
			labels = append(labels, "12 PM")
		case hour > 12:
			labels = append(labels, fmt.Sprintf("%d PM", hour-12))
		default:
			labels = append(labels, fmt.Sprintf("%d AM", hour))
		}
	}
	return labels
}

// TimePosition returns the vertical position of the given wall-clock time
// as a percentage of the visible window, or false when the time falls
// outside [startHour, endHour).
func TimePosition(hour, minute, startHour, endHour int) (float64, bool) {
	if hour < startHour || hour >= endHour {
		return 0, false
	}
	totalMinutes := (endHour - startHour) * 60
	current := (hour-startHour)*60 + minute
	return float64(current) / float64(totalMinutes) * 100, true
}
