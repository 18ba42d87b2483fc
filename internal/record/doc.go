// Package record defines the Record type and the tuple-line grammar that
// source dumps are written in.
//
// A line looks like
//
//	('<id>', '<base64-email>', <f2>, <f3>, <f4>, <f5>, <f6>, <f7>, '<address>'),
//
// Parsing never fails loudly: malformed lines are rejected with ok=false
// and the caller counts them.
package record
