// Package v1 contains the sweep file schema and the job/run status types
// shared by the dispatcher, monitor and stores.
package v1
