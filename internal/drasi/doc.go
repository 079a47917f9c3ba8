// Package drasi contains the HTTP clients the reaction uses to talk to
// its query container: the management API, polled during bootstrap
// until a continuous query reports itself running, and the view
// service, which streams a query's current result set.
package drasi
