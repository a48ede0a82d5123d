// Package altitude resolves the ground elevation of geographic coordinates
// using an Open-Elevation compatible service, caching results persistently so
// that each location is only fetched once.
package altitude
