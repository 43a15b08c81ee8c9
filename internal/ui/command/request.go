package command

import (
	"fmt"
	"strings"
)

// Kind identifies a palette command.
type Kind string

const (
	KindRefresh    Kind = "refresh"
	KindRead       Kind = "read"
	KindReadAll    Kind = "read-all"
	KindClear      Kind = "clear"
	KindTest       Kind = "test"
	KindPermission Kind = "permission"
	KindOpen       Kind = "open"
	KindSettings   Kind = "settings"
	KindHelp       Kind = "help"
	KindQuit       Kind = "quit"
)

// Request is a parsed, validated palette command.
type Request struct {
	Kind Kind
	// Arg is the notification id for read and open, or the permission
	// sub-action (request, reset).
	Arg string
}

type definition struct {
	kind    Kind
	argName string
	needArg bool
	allowed []string
}

var commands = map[string]definition{
	"refresh":    {kind: KindRefresh},
	"sync":       {kind: KindRefresh},
	"read":       {kind: KindRead, argName: "id", needArg: true},
	"read-all":   {kind: KindReadAll},
	"readall":    {kind: KindReadAll},
	"clear":      {kind: KindClear},
	"test":       {kind: KindTest},
	"permission": {kind: KindPermission, argName: "action", allowed: []string{"request", "reset"}},
	"open":       {kind: KindOpen, argName: "id", needArg: true},
	"settings":   {kind: KindSettings},
	"config":     {kind: KindSettings},
	"help":       {kind: KindHelp},
	"quit":       {kind: KindQuit},
	"q":          {kind: KindQuit},
}

// Parse turns palette input into a Request. Names are case-insensitive;
// unknown commands and missing or extra arguments are rejected.
func Parse(input string) (Request, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Request{}, fmt.Errorf("empty command")
	}

	name := strings.ToLower(fields[0])
	sp, ok := commands[name]
	if !ok {
		return Request{}, fmt.Errorf("unknown command %q", fields[0])
	}

	args := fields[1:]
	switch {
	case sp.argName == "" && len(args) > 0:
		return Request{}, fmt.Errorf("%s takes no arguments", name)
	case len(args) > 1:
		return Request{}, fmt.Errorf("%s takes a single %s", name, sp.argName)
	case sp.needArg && len(args) == 0:
		return Request{}, fmt.Errorf("%s needs a notification %s", name, sp.argName)
	}

	req := Request{Kind: sp.kind}
	if len(args) == 1 {
		req.Arg = args[0]
	}

	if len(sp.allowed) > 0 && req.Arg != "" {
		req.Arg = strings.ToLower(req.Arg)
		if !contains(sp.allowed, req.Arg) {
			return Request{}, fmt.Errorf("%s: unknown %s %q (want %s)", name, sp.argName, req.Arg, strings.Join(sp.allowed, " or "))
		}
	}
	if req.Kind == KindPermission && req.Arg == "" {
		req.Arg = "request"
	}

	return req, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
