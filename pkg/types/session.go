package types

// Session supplies the signed-in identity used to scope owner queries.
type Session interface {
	Authenticated() bool
	UserID() string
}

// StaticSession is a fixed identity. The zero value is anonymous.
type StaticSession struct {
	ID string
}

// Authenticated implements Session.
func (s StaticSession) Authenticated() bool { return s.ID != "" }

// UserID implements Session.
func (s StaticSession) UserID() string { return s.ID }
