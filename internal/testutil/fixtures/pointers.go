// Package fixtures builds source records for tests.
package fixtures

// IntPtr returns a pointer to i, for optional patch fields
func IntPtr(i int) *int {
	return &i
}
