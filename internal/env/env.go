// Package env resolves the deployment environment from ENV.
package env

import "os"

type Environment string

const (
	Local      Environment = "local"
	Production Environment = "production"

	Key string = "ENV"
)

func (e Environment) Valid() bool {
	switch e {
	case Local, Production:
		return true
	}
	return false
}

// Parse maps raw to an Environment, defaulting to Local.
func Parse(raw string) Environment {
	e := Environment(raw)
	if !e.Valid() {
		return Local
	}
	return e
}

var Current = Parse(os.Getenv(Key))

// Load re-reads ENV, e.g. after a .env file has been applied.
func Load() Environment {
	Current = Parse(os.Getenv(Key))
	return Current
}
