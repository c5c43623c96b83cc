// Package integration exercises a mock-mode agent end to end over HTTP and websockets.
package integration
