//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds hash at the library default cost to keep the detector fast
func passwordHashCost() int { return bcrypt.DefaultCost }
