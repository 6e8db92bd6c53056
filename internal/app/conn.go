package app

// Role is what a connection acts as within its session.
type Role string

const (
	RoleNone        Role = ""
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Conn is the session context of one transport connection. It is owned by
// the connection's read loop and passed into every engine call.
type Conn struct {
	ID        string
	Role      Role
	SessionID string
}

// NewConn returns an unattached connection context.
func NewConn(id string) *Conn {
	return &Conn{ID: id}
}

func (c *Conn) attach(role Role, sessionID string) {
	c.Role = role
	c.SessionID = sessionID
}

// IsHostOf reports whether the connection hosts sessionID.
func (c *Conn) IsHostOf(sessionID string) bool {
	return c.Role == RoleHost && c.SessionID == sessionID
}
