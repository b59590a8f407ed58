// Package domain holds the tracker's entities, sentinel errors and the
// repository interfaces implemented by the database package.
package domain
