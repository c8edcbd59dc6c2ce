// Package scope folds the flat token stream into per-region opcode sets,
// cascading global, master and group values down to each region.
package scope

import (
	"log/slog"

	"github.com/cbegin/sfzplay-go/internal/opcode"
	"github.com/cbegin/sfzplay-go/internal/parser"
)

// Document is the resolved hierarchy: one merged opcode set per region in
// source order, plus each <control> and <effect> block.
type Document struct {
	Regions []*opcode.Set
	// Controls holds one set per <control> header in source order.
	Controls []*opcode.Set
	// RegionControl[i] indexes the last <control> block seen before
	// Regions[i], or is -1.
	RegionControl []int
	// Effects holds one set per <effect> header; they do not cascade.
	Effects []*opcode.Set
	// Dropped counts opcodes that had no scope to land in.
	Dropped int
}

const (
	levelGlobal = iota
	levelMaster
	levelGroup
	numLevels
)

// resolver keeps one accumulated snapshot per depth. Entering a level clears
// everything deeper and starts from a clone of the nearest shallower snapshot,
// so sibling scopes never share storage.
type resolver struct {
	log     *slog.Logger
	levels  [numLevels]*opcode.Set
	current *opcode.Set
	region  *opcode.Set
	doc     *Document
}

// Resolve walks the tokens and returns the resolved document.
func Resolve(tokens []parser.Token, log *slog.Logger) *Document {
	if log == nil {
		log = slog.Default()
	}
	r := &resolver{
		log: log,
		doc: &Document{},
	}
	for _, tok := range tokens {
		switch tok.Kind {
		case parser.TokenHeader:
			r.enter(tok)
		case parser.TokenOpcode:
			r.apply(tok)
		}
	}
	r.closeRegion()
	return r.doc
}

func (r *resolver) enter(tok parser.Token) {
	r.closeRegion()
	switch tok.Header {
	case parser.HeaderGlobal:
		r.open(levelGlobal)
	case parser.HeaderMaster:
		r.open(levelMaster)
	case parser.HeaderGroup:
		r.open(levelGroup)
	case parser.HeaderRegion:
		r.region = r.parent(numLevels).Clone()
		r.current = r.region
	case parser.HeaderControl:
		ctl := opcode.NewSet()
		r.doc.Controls = append(r.doc.Controls, ctl)
		r.current = ctl
	case parser.HeaderEffect:
		fx := opcode.NewSet()
		r.doc.Effects = append(r.doc.Effects, fx)
		r.current = fx
	default:
		r.log.Debug("unsupported header, opcodes ignored", "header", tok.Name, "file", tok.File, "line", tok.Line)
		r.current = nil
	}
}

func (r *resolver) open(level int) {
	for l := level; l < numLevels; l++ {
		r.levels[l] = nil
	}
	r.levels[level] = r.parent(level).Clone()
	r.current = r.levels[level]
}

// parent returns the nearest open snapshot above level, or an empty set.
func (r *resolver) parent(level int) *opcode.Set {
	for l := level - 1; l >= 0; l-- {
		if r.levels[l] != nil {
			return r.levels[l]
		}
	}
	return opcode.NewSet()
}

func (r *resolver) apply(tok parser.Token) {
	if r.current == nil {
		r.doc.Dropped++
		r.log.Debug("opcode outside of any scope", "opcode", tok.Opcode.String(), "file", tok.File, "line", tok.Line)
		return
	}
	r.current.Put(tok.Opcode)
}

func (r *resolver) closeRegion() {
	if r.region == nil {
		return
	}
	r.doc.Regions = append(r.doc.Regions, r.region)
	r.doc.RegionControl = append(r.doc.RegionControl, len(r.doc.Controls)-1)
	r.region = nil
	r.current = nil
}
