package types

import "fmt"

// Command identifies the operation a request frame carries.
type Command uint32

const (
	CmdOpen     Command = 0
	CmdCreate   Command = 1
	CmdClose    Command = 2
	CmdRead     Command = 3
	CmdAppend   Command = 4
	CmdSeek     Command = 5
	CmdRemove   Command = 6
	CmdShutdown Command = 7
	CmdLength   Command = 8
	CmdPread    Command = 9
	CmdMkdirs   Command = 10
	CmdStatus   Command = 11
	CmdFlush    Command = 12
	CmdRmdir    Command = 13
	CmdReaddir  Command = 14
	CmdExists   Command = 15
	CmdRename   Command = 16

	// CmdMax is one past the highest defined command.
	CmdMax Command = 17
)

var commandNames = [CmdMax]string{
	"OPEN", "CREATE", "CLOSE", "READ", "APPEND", "SEEK", "REMOVE", "SHUTDOWN",
	"LENGTH", "PREAD", "MKDIRS", "STATUS", "FLUSH", "RMDIR", "READDIR",
	"EXISTS", "RENAME",
}

// String returns the upper-case command name used in logs and metrics.
func (c Command) String() string {
	if c < CmdMax {
		return commandNames[c]
	}
	return fmt.Sprintf("COMMAND_%d", uint32(c))
}

// Open and create flags.
const (
	OpenFlagDirect    uint32 = 0x01
	OpenFlagOverwrite uint32 = 0x02
	OpenFlagVerify    uint32 = 0x04
)

// Shutdown flags.
const (
	ShutdownFlagImmediate uint16 = 0x01
)
