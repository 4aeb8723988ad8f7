// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing conversations, assistant messages
// and event traces. They are not intended for production usage.
package testutil
