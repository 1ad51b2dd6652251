// Package httputil holds the JSON response and request decoding helpers the
// handlers share, so every endpoint answers with the same error shape.
package httputil
