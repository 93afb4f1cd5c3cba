// Package mongo provides a MongoDB-backed implementation of thread.Store.
// Build the low-level client via features/thread/mongo/clients/mongo and pass
// it to NewStore so conversation history survives restarts.
package mongo
