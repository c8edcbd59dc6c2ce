package parser

import (
	"log/slog"

	"github.com/cbegin/sfzplay-go/internal/opcode"
)

// Header is a scope header found in the text.
type Header int

const (
	HeaderNone Header = iota
	HeaderGlobal
	HeaderMaster
	HeaderGroup
	HeaderRegion
	HeaderControl
	HeaderEffect
	HeaderOther
)

func (h Header) String() string {
	switch h {
	case HeaderGlobal:
		return "global"
	case HeaderMaster:
		return "master"
	case HeaderGroup:
		return "group"
	case HeaderRegion:
		return "region"
	case HeaderControl:
		return "control"
	case HeaderEffect:
		return "effect"
	case HeaderOther:
		return "other"
	default:
		return "none"
	}
}

func headerFromName(name string) Header {
	switch name {
	case "global":
		return HeaderGlobal
	case "master":
		return HeaderMaster
	case "group":
		return HeaderGroup
	case "region":
		return HeaderRegion
	case "control":
		return HeaderControl
	case "effect":
		return HeaderEffect
	default:
		return HeaderOther
	}
}

type TokenKind int

const (
	TokenHeader TokenKind = iota + 1
	TokenOpcode
)

// Token is one element of the flattened document: either a scope transition
// or an opcode. File and Line point at where it was read.
type Token struct {
	Kind   TokenKind
	Header Header
	Name   string // header name as written, for HeaderOther
	Opcode opcode.Opcode
	File   string
	Line   int
}

// Result is the output of a preprocessing run.
type Result struct {
	Tokens []Token
	// Files lists every file read, root first, in the order they were opened.
	Files []string
	// SkippedIncludes counts includes dropped by the include guard.
	SkippedIncludes int
}

// MaxIncludeDepth bounds nesting when the include guard is off, so that a
// cyclic include fails the load instead of recursing forever.
const MaxIncludeDepth = 32

type Options struct {
	IncludeGuard bool
	Logger       *slog.Logger
	// ReadFile defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}
