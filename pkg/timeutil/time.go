package timeutil

import "time"

// MySQLLayout is the datetime layout used by the source database
const MySQLLayout = "2006-01-02 15:04:05"

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// ParseDate parses a date string and returns a UTC time
func ParseDate(layout, value string) (time.Time, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseMySQLUTC parses a source GMT datetime column. Empty and zero dates yield nil.
func ParseMySQLUTC(value string) *time.Time {
	if value == "" || value == "0" || value == "0000-00-00 00:00:00" {
		return nil
	}
	t, err := ParseDate(MySQLLayout, value)
	if err != nil {
		return nil
	}
	return &t
}

// InLocation converts a UTC instant into the given zone, defaulting to UTC
func InLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t.UTC()
	}
	return t.In(loc)
}

// LoadLocation resolves a site timezone name, falling back to UTC for empty or unknown names
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
