package fsbroker

import (
	"context"
	"fmt"

	"github.com/marmos91/fsbroker/internal/logger"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/handlers"
	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// ============================================================================
// Operation Dispatch Table
// ============================================================================

// OperationInfo describes one broker operation.
type OperationInfo struct {
	// Name is the upper-case operation name used in logs and metric labels.
	Name string

	// Handler is the dispatch unit that decodes the request and calls the broker.
	Handler handlers.Handler

	// Mutating is true for operations that change stored state.
	Mutating bool
}

// DispatchTable maps command codes to their dispatch units.
// It is populated once in init and read-only afterwards.
var DispatchTable map[types.Command]*OperationInfo

func init() {
	DispatchTable = map[types.Command]*OperationInfo{
		types.CmdOpen:     {Name: "OPEN", Handler: handlers.HandleOpen},
		types.CmdCreate:   {Name: "CREATE", Handler: handlers.HandleCreate, Mutating: true},
		types.CmdClose:    {Name: "CLOSE", Handler: handlers.HandleClose},
		types.CmdRead:     {Name: "READ", Handler: handlers.HandleRead},
		types.CmdAppend:   {Name: "APPEND", Handler: handlers.HandleAppend, Mutating: true},
		types.CmdSeek:     {Name: "SEEK", Handler: handlers.HandleSeek},
		types.CmdRemove:   {Name: "REMOVE", Handler: handlers.HandleRemove, Mutating: true},
		types.CmdShutdown: {Name: "SHUTDOWN", Handler: handlers.HandleShutdown},
		types.CmdLength:   {Name: "LENGTH", Handler: handlers.HandleLength},
		types.CmdPread:    {Name: "PREAD", Handler: handlers.HandlePread},
		types.CmdMkdirs:   {Name: "MKDIRS", Handler: handlers.HandleMkdirs, Mutating: true},
		types.CmdStatus:   {Name: "STATUS", Handler: handlers.HandleStatus},
		types.CmdFlush:    {Name: "FLUSH", Handler: handlers.HandleFlush},
		types.CmdRmdir:    {Name: "RMDIR", Handler: handlers.HandleRmdir, Mutating: true},
		types.CmdReaddir:  {Name: "READDIR", Handler: handlers.HandleReaddir},
		types.CmdExists:   {Name: "EXISTS", Handler: handlers.HandleExists},
		types.CmdRename:   {Name: "RENAME", Handler: handlers.HandleRename, Mutating: true},
	}
}

// Lookup returns the operation registered for cmd.
func Lookup(cmd types.Command) (*OperationInfo, bool) {
	op, ok := DispatchTable[cmd]
	return op, ok
}

// Dispatch runs the dispatch unit registered for the event's command.
// Unknown commands are answered with PROTOCOL_ERROR.
func Dispatch(ctx context.Context, ev *handlers.Event, rc *handlers.ResponseChannel, broker handlers.Broker) {
	op, ok := Lookup(ev.Command())
	if !ok {
		msg := fmt.Sprintf("Command code %d not implemented", ev.Header.Command)
		logger.Error("Protocol error - %s (client=%s)", msg, ev.ClientAddr)
		if err := rc.Error(types.ProtocolError, msg); err != nil {
			logger.Error("Problem sending error back to client - %v", err)
		}
		return
	}

	op.Handler(ctx, ev, rc, broker)
}
