// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing conversation trees, provider replies and
// scripted tools. They are not intended for production usage.
package testutil
