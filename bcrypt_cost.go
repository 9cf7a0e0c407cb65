//go:build !race

package auth

// passwordHashCost is the bcrypt work factor for stored password hashes
func passwordHashCost() int { return 11 }
