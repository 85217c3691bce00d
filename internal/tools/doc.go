// Package tools provides the tool registry for errand-gateway.
//
// A Descriptor maps a tool name to its input schema, required credential
// scope, and in-process handler. The registry is read-mostly: tools are
// registered at startup and resolved on every dispatch. Re-registering a
// name replaces the descriptor atomically (replace-and-warn — the strict
// variant returns ErrDuplicateTool instead), which is also the hot-reload
// path.
package tools
