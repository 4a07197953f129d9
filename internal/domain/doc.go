// Package domain contains the core domain entities shared across the
// application. Domain types carry their own validation and do not depend
// on persistence or transport concerns.
package domain
