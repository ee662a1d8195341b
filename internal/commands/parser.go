// Package commands implements the "~" command surface used to manage
// conversation threads.
package commands

import (
	"fmt"
	"strings"
)

// Sentinel marks an input as a command rather than a query.
const Sentinel = "~"

type Kind int

const (
	KindInvalid Kind = iota
	KindHelp
	KindCreate
	KindList
	KindSwitch
	KindError
)

// Command is the parsed form of a command line. For KindSwitch, ThreadID is
// set; for KindError, Message holds the reply to send back.
type Command struct {
	Kind     Kind
	ThreadID string
	Message  string
}

const (
	msgInvalidCommand = "Invalid command."
	msgMultipleFlags  = "Multiple flags in one dash not allowed. Use one flag per dash."
	msgOneFlagPerRun  = "Only one flag per run is allowed."
	msgSwitchNeedsID  = "Flag -s requires an ID argument."
)

func errorCommand(msg string) Command {
	return Command{Kind: KindError, Message: msg}
}

// IsCommand reports whether input should be routed to the command handler.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), Sentinel)
}

// Parse turns a command line into a Command. It performs no I/O.
func Parse(input string) Command {
	tokens := strings.Fields(input)
	if len(tokens) == 0 {
		return Command{Kind: KindInvalid}
	}

	switch tokens[0] {
	case Sentinel + "help":
		return Command{Kind: KindHelp}
	case Sentinel + "thread":
		return parseThread(tokens[1:])
	default:
		return Command{Kind: KindInvalid}
	}
}

func parseThread(args []string) Command {
	if len(args) == 0 {
		return Command{Kind: KindHelp}
	}

	var cmd Command
	seen := false
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return errorCommand(fmt.Sprintf("Unexpected argument: %s", arg))
		}

		flag := strings.TrimPrefix(arg, "-")
		if len(flag) > 1 {
			return errorCommand(msgMultipleFlags)
		}
		if seen {
			return errorCommand(msgOneFlagPerRun)
		}
		seen = true

		switch flag {
		case "c":
			cmd.Kind = KindCreate
		case "l":
			cmd.Kind = KindList
		case "s":
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "-") {
				return errorCommand(msgSwitchNeedsID)
			}
			i++
			cmd.Kind = KindSwitch
			cmd.ThreadID = args[i]
		default:
			return errorCommand(fmt.Sprintf("Invalid flag: %s. Accepted flags are: -c, -l, -s", arg))
		}
	}
	return cmd
}
