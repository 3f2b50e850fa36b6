// Package host is the application runtime the adapter plugs into: it receives
// workflow triggers and notifications and knows the authenticated user.
package host

// Level is the severity of a host notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// User is the host-authenticated user.
type User struct {
	ID    string `json:"id" mapstructure:"id" yaml:"id"`
	Email string `json:"email,omitempty" mapstructure:"email" yaml:"email"`
	Name  string `json:"name,omitempty" mapstructure:"name" yaml:"name"`
}

// Host receives workflow triggers from plugins.
type Host interface {
	// Trigger runs workflows listening on key. event is the payload handed to
	// the workflow, conditions is what trigger filters are evaluated against.
	Trigger(key string, event, conditions any)
	// Notify shows a message to the application builder.
	Notify(level Level, text string)
	// User returns the authenticated user, or nil for anonymous sessions.
	User() *User
}
