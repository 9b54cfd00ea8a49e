// Package session provides the ephemeral, per-job execution context
// the ttl index engine and the command dispatcher pass around. It
// carries no connection state — unlike a client session, it never
// outlives a single scan or delete job.
package session

// Local is a throwaway session created for one internal job
// invocation (a scan or a delete), analogous to a local session guard
// bound to the engine rather than to a client connection.
type Local struct {
	authed bool
	dbID   uint32
}

// New returns a fresh, unauthenticated Local session.
func New() *Local {
	return &Local{}
}

// SetAuthed marks the session as authenticated. The command
// dispatcher does not check this flag.
func (s *Local) SetAuthed() { s.authed = true }

// SetDBID selects which logical database subsequent commands on this
// session address.
func (s *Local) SetDBID(dbID uint32) { s.dbID = dbID }

// DBID returns the database selected with SetDBID.
func (s *Local) DBID() uint32 { return s.dbID }

// Authed reports whether SetAuthed has been called.
func (s *Local) Authed() bool { return s.authed }
