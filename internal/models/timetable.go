package models

// ClassInfo describes one class type offered by the studio.
type ClassInfo struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

// ClassCatalog is the studio's class lineup.
var ClassCatalog = []ClassInfo{
	{Name: "Yoga", DurationMinutes: 60},
	{Name: "Pilates", DurationMinutes: 45},
	{Name: "HIIT", DurationMinutes: 30},
	{Name: "Personal Training", DurationMinutes: 60},
	{Name: "Group Fitness", DurationMinutes: 45},
}

// ClassDuration returns the duration for a class type, defaulting to 60
// minutes for unknown types.
func ClassDuration(classType string) int {
	for _, c := range ClassCatalog {
		if c.Name == classType {
			return c.DurationMinutes
		}
	}
	return 60
}

// TimetableEntry is one recurring schedulable slot: a class an instructor
// teaches at a fixed weekday and start time. The availability index expands
// these into concrete TimeSlots per date.
type TimetableEntry struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	Weekday    int    `json:"weekday" gorm:"index"` // 0=Sunday ... 6=Saturday
	StartTime  string `json:"start_time"`           // HH:MM
	Instructor string `json:"instructor"`
	ClassType  string `json:"class_type"`
}
