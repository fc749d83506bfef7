// Package physics owns the per-vehicle driving laws.
//
// Responsibilities: longitudinal acceleration via the Intelligent Driver
// Model (IDM) and gap-acceptance lane-change decisions via MOBIL.
// Key types: IDM, MOBIL, State, Neighborhood.
//
// Dependency rule: physics is a leaf. It knows nothing about roads,
// signals or the scheduler; callers hand it local state and get numbers back.
package physics
