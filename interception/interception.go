// Package interception lets registered interceptors observe database
// commands and connections.
//
// Interceptors are discovered through the dependency resolver when a
// configuration is locked and registered with a Dispatchers value, which then
// fans every notification out to the interceptors implementing the matching
// interface:
//
//	d := interception.NewDispatchers()
//	d.Add(myInterceptor)
//	res, err := d.ExecContext(ctx, db, &interception.Command{Text: "SELECT 1"}, "")
package interception

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/deep-rent/ormconf/resolve"
)

// Interceptor is implemented by every value that can be registered with
// Dispatchers. It must implement at least one of CommandInterceptor or
// ConnectionInterceptor.
type Interceptor any

// Service is the tag under which interceptors are resolved. Interceptors are
// collected with GetServices; GetService is not meaningful for this tag.
var Service = resolve.NewService[Interceptor]("interceptor")

// ErrNotInterceptor is returned by Add for values that implement none of
// the interceptor interfaces.
var ErrNotInterceptor = errors.New("value does not implement any interceptor interface")

// ErrUncomparable is returned by Add for interceptors whose dynamic type
// cannot be compared with ==, such as structs holding a slice. Register a
// pointer to such a value instead.
var ErrUncomparable = errors.New("interceptor type is not comparable")

// Check reports whether i can be registered with Dispatchers.
func Check(i Interceptor) error {
	switch i.(type) {
	case CommandInterceptor, ConnectionInterceptor:
	default:
		return ErrNotInterceptor
	}
	if !reflect.TypeOf(i).Comparable() {
		return ErrUncomparable
	}
	return nil
}

// Same reports whether a and b are the same interceptor. Values of
// uncomparable types are never the same.
func Same(a, b Interceptor) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func same(a Interceptor) func(Interceptor) bool {
	return func(b Interceptor) bool { return Same(a, b) }
}

// Command describes a database command.
type Command struct {
	Text string
	Args []any
}

// CommandContext carries the state of a single command execution. The
// Executed notification sees Result and Err as produced by the database.
type CommandContext struct {
	Context   context.Context
	DBContext string // Name of the issuing context, empty if unknown.
	Started   time.Time
	Elapsed   time.Duration
	Result    any
	Err       error
}

// ConnectionContext carries the state of a connection being opened.
type ConnectionContext struct {
	Context   context.Context
	DBContext string
	Err       error
}

// CommandInterceptor observes command execution.
type CommandInterceptor interface {
	Executing(cmd *Command, c *CommandContext)
	Executed(cmd *Command, c *CommandContext)
}

// ConnectionInterceptor observes connections being opened.
type ConnectionInterceptor interface {
	Opening(db *sql.DB, c *ConnectionContext)
	Opened(db *sql.DB, c *ConnectionContext)
}

// Dispatchers fans notifications out to registered interceptors.
// It is safe for concurrent use.
type Dispatchers struct {
	mu  sync.RWMutex
	all []Interceptor
	now func() time.Time
}

// NewDispatchers creates an empty set of dispatchers.
func NewDispatchers() *Dispatchers {
	return &Dispatchers{now: time.Now}
}

// Add registers i. Registering the same interceptor twice has no effect.
func (d *Dispatchers) Add(i Interceptor) error {
	if err := Check(i); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.ContainsFunc(d.all, same(i)) {
		d.all = append(d.all, i)
	}
	return nil
}

// Remove unregisters i if it was registered.
func (d *Dispatchers) Remove(i Interceptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx := slices.IndexFunc(d.all, same(i)); idx >= 0 {
		d.all = slices.Delete(d.all, idx, idx+1)
	}
}

// Clear unregisters all interceptors.
func (d *Dispatchers) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = nil
}

// Len returns the number of registered interceptors.
func (d *Dispatchers) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.all)
}

// Contains reports whether i is registered.
func (d *Dispatchers) Contains(i Interceptor) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.ContainsFunc(d.all, same(i))
}

func (d *Dispatchers) snapshot() []Interceptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.all)
}

// Executing notifies all command interceptors that cmd is about to run.
func (d *Dispatchers) Executing(cmd *Command, c *CommandContext) {
	for _, i := range d.snapshot() {
		if ci, ok := i.(CommandInterceptor); ok {
			ci.Executing(cmd, c)
		}
	}
}

// Executed notifies all command interceptors that cmd has run.
func (d *Dispatchers) Executed(cmd *Command, c *CommandContext) {
	for _, i := range d.snapshot() {
		if ci, ok := i.(CommandInterceptor); ok {
			ci.Executed(cmd, c)
		}
	}
}

// Opening notifies all connection interceptors that db is being opened.
func (d *Dispatchers) Opening(db *sql.DB, c *ConnectionContext) {
	for _, i := range d.snapshot() {
		if ci, ok := i.(ConnectionInterceptor); ok {
			ci.Opening(db, c)
		}
	}
}

// Opened notifies all connection interceptors that db has been opened.
func (d *Dispatchers) Opened(db *sql.DB, c *ConnectionContext) {
	for _, i := range d.snapshot() {
		if ci, ok := i.(ConnectionInterceptor); ok {
			ci.Opened(db, c)
		}
	}
}

// Open pings db wrapped in Opening and Opened notifications. Interceptors may
// replace the error seen by the caller by setting c.Err in Opened.
func (d *Dispatchers) Open(ctx context.Context, db *sql.DB, dbContext string) error {
	c := &ConnectionContext{Context: ctx, DBContext: dbContext}
	d.Opening(db, c)
	if c.Err == nil {
		c.Err = db.PingContext(ctx)
	}
	d.Opened(db, c)
	return c.Err
}

// ExecContext runs cmd against db wrapped in Executing and Executed
// notifications. If an Executing interceptor sets c.Err, the command is
// skipped.
func (d *Dispatchers) ExecContext(
	ctx context.Context,
	db *sql.DB,
	cmd *Command,
	dbContext string,
) (sql.Result, error) {
	c := &CommandContext{
		Context:   ctx,
		DBContext: dbContext,
		Started:   d.now(),
	}
	d.Executing(cmd, c)
	if c.Err == nil {
		var res sql.Result
		res, c.Err = db.ExecContext(ctx, cmd.Text, cmd.Args...)
		if c.Err == nil {
			c.Result = res
		}
	}
	c.Elapsed = d.now().Sub(c.Started)
	d.Executed(cmd, c)
	res, _ := c.Result.(sql.Result)
	return res, c.Err
}
