package interception

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/deep-rent/ormconf/resolve"
)

// FormatterFactory creates the formatter used to log the activity of the
// named context.
type FormatterFactory func(dbContext string, logger *slog.Logger) *LogFormatter

// FormatterService is the tag of the FormatterFactory service.
var FormatterService = resolve.NewService[FormatterFactory]("database log formatter factory")

// NewLogFormatter is the default FormatterFactory.
func NewLogFormatter(dbContext string, logger *slog.Logger) *LogFormatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogFormatter{dbContext: dbContext, logger: logger}
}

// LogFormatter is a command and connection interceptor that writes database
// activity to a structured logger. If created for a named context, it only
// logs activity of that context.
type LogFormatter struct {
	dbContext string
	logger    *slog.Logger
}

func (f *LogFormatter) accepts(dbContext string) bool {
	return f.dbContext == "" || f.dbContext == dbContext
}

// Executing implements CommandInterceptor.
func (f *LogFormatter) Executing(cmd *Command, c *CommandContext) {
	if !f.accepts(c.DBContext) {
		return
	}
	attrs := []any{slog.String("command", cmd.Text)}
	if len(cmd.Args) != 0 {
		attrs = append(attrs, slog.Any("args", cmd.Args))
	}
	if c.DBContext != "" {
		attrs = append(attrs, slog.String("context", c.DBContext))
	}
	f.logger.DebugContext(ctx(c.Context), "Executing command", attrs...)
}

// Executed implements CommandInterceptor.
func (f *LogFormatter) Executed(cmd *Command, c *CommandContext) {
	if !f.accepts(c.DBContext) {
		return
	}
	if c.Err != nil {
		f.logger.WarnContext(ctx(c.Context), "Command failed",
			slog.String("command", cmd.Text),
			slog.Duration("elapsed", c.Elapsed),
			slog.Any("error", c.Err),
		)
		return
	}
	attrs := []any{
		slog.String("command", cmd.Text),
		slog.Duration("elapsed", c.Elapsed),
	}
	if res, ok := c.Result.(sql.Result); ok {
		if n, err := res.RowsAffected(); err == nil {
			attrs = append(attrs, slog.Int64("rowsAffected", n))
		}
	} else if c.Result != nil {
		attrs = append(attrs, slog.Any("result", c.Result))
	}
	f.logger.DebugContext(ctx(c.Context), "Command completed", attrs...)
}

// Opening implements ConnectionInterceptor.
func (f *LogFormatter) Opening(_ *sql.DB, c *ConnectionContext) {
	if f.accepts(c.DBContext) {
		f.logger.DebugContext(ctx(c.Context), "Opening connection")
	}
}

// Opened implements ConnectionInterceptor.
func (f *LogFormatter) Opened(_ *sql.DB, c *ConnectionContext) {
	if !f.accepts(c.DBContext) {
		return
	}
	if c.Err != nil {
		f.logger.WarnContext(ctx(c.Context), "Failed to open connection", slog.Any("error", c.Err))
		return
	}
	f.logger.DebugContext(ctx(c.Context), "Opened connection")
}

func ctx(c context.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	return c
}

var (
	_ CommandInterceptor    = (*LogFormatter)(nil)
	_ ConnectionInterceptor = (*LogFormatter)(nil)
)
