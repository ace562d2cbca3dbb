// Package conv provides checked integer conversions for values read from
// or written to on-disk headers.
package conv
