// Package identity resolves the client id a realtime connection is opened with.
package identity

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/host"
)

// FormulaPrefix marks a configured client id as an expression.
const FormulaPrefix = "="

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// UserSource returns the host-authenticated user, or nil.
type UserSource interface {
	User() *host.User
}

// Resolver resolves a stable client id for the session.
//
// Precedence: the configured value (a literal, or a formula prefixed with
// "="), then the host user id prefixed with the namespace, then an anonymous
// id generated once per resolver.
type Resolver struct {
	configured string
	namespace  string
	users      UserSource
	log        *zerolog.Logger

	mu        sync.Mutex
	program   *vm.Program
	compiled  bool
	anonymous string

	now  func() time.Time
	rand func(n int) int
}

// NewResolver creates a resolver. users may be nil.
func NewResolver(configured, namespace string, users UserSource, logger *zerolog.Logger) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Resolver{
		configured: strings.TrimSpace(configured),
		namespace:  namespace,
		users:      users,
		log:        logger,
		now:        time.Now,
		rand:       rand.IntN,
	}
}

// Resolve returns the client id. It never fails.
func (r *Resolver) Resolve() string {
	if v := r.configuredValue(); v != "" {
		return v
	}

	if r.users != nil {
		if u := r.users.User(); u != nil && u.ID != "" {
			if r.namespace == "" {
				return u.ID
			}
			return r.namespace + "-" + u.ID
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.anonymous == "" {
		r.anonymous = r.newAnonymousID()
	}
	return r.anonymous
}

func (r *Resolver) configuredValue() string {
	if r.configured == "" {
		return ""
	}
	if !strings.HasPrefix(r.configured, FormulaPrefix) {
		return r.configured
	}

	program := r.compile()
	if program == nil {
		return ""
	}

	out, err := expr.Run(program, r.env())
	if err != nil {
		r.log.Warn().Err(err).Str("formula", r.configured).Msg("client id formula evaluation failed")
		return ""
	}
	if out == nil {
		return ""
	}
	return fmt.Sprint(out)
}

func (r *Resolver) compile() *vm.Program {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled {
		return r.program
	}
	r.compiled = true

	source := strings.TrimPrefix(r.configured, FormulaPrefix)
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		r.log.Warn().Err(err).Str("formula", r.configured).Msg("client id formula does not compile")
		return nil
	}
	r.program = program
	return program
}

func (r *Resolver) env() map[string]any {
	user := map[string]any{}
	if r.users != nil {
		if u := r.users.User(); u != nil {
			user["id"] = u.ID
			user["email"] = u.Email
			user["name"] = u.Name
		}
	}
	return map[string]any{"user": user}
}

// newAnonymousID returns anon-<unix ms>-<9 base36 chars>.
func (r *Resolver) newAnonymousID() string {
	var b strings.Builder
	b.Grow(9)
	for range 9 {
		b.WriteByte(base36Chars[r.rand(len(base36Chars))])
	}
	return "anon-" + strconv.FormatInt(r.now().UnixMilli(), 10) + "-" + b.String()
}
