// Package formats provides parsers for mesh interchange formats.
package formats
