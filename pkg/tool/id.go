package tool

import "github.com/google/uuid"

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ShortID returns the first n characters of id, used for generated
// fallback display names.
func ShortID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
