// Package httputil holds the JSON helpers used by the control-plane
// handlers. Errors are written as {"error", "code", "details"}; 5xx
// responses never carry the underlying error.
package httputil
