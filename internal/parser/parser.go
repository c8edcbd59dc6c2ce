package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cbegin/sfzplay-go/internal/opcode"
)

var ErrIncludeDepth = errors.New("include nesting too deep")

// Parser flattens an instrument definition and everything it includes into a
// token stream. A Parser is not safe for concurrent use; each Load owns its
// define table and include stack for its whole duration.
type Parser struct {
	opts Options
	log  *slog.Logger

	defines map[string]string
	names   []string // define names, longest first
	open    map[string]bool
	res     *Result
}

func New(opts Options) *Parser {
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Parser{opts: opts, log: log}
}

// Load reads the root document at path and returns its flattened tokens.
func (p *Parser) Load(path string) (*Result, error) {
	p.reset()
	file := canonicalPath(path)
	data, err := p.opts.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := p.process(string(data), file, 0); err != nil {
		return nil, err
	}
	return p.res, nil
}

// Parse processes an in-memory document. Includes resolve against dir.
func (p *Parser) Parse(src string, dir string) (*Result, error) {
	p.reset()
	file := filepath.Join(canonicalPath(dir), "<memory>")
	if err := p.process(src, file, 0); err != nil {
		return nil, err
	}
	return p.res, nil
}

func (p *Parser) reset() {
	p.defines = make(map[string]string)
	p.names = p.names[:0]
	p.open = make(map[string]bool)
	p.res = &Result{}
}

func (p *Parser) process(src string, file string, depth int) error {
	if depth > MaxIncludeDepth {
		return fmt.Errorf("%s: %w (limit %d)", file, ErrIncludeDepth, MaxIncludeDepth)
	}
	if p.opts.IncludeGuard {
		p.open[file] = true
		defer delete(p.open, file)
	}
	p.res.Files = append(p.res.Files, file)
	dir := filepath.Dir(file)

	lines := strings.Split(src, "\n")
	for n, raw := range lines {
		lineNo := n + 1
		line := strings.TrimSpace(stripComment(strings.TrimRight(raw, "\r")))
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "#define"):
			p.define(line[len("#define"):], file, lineNo)
		case strings.HasPrefix(line, "#include"):
			if err := p.include(line[len("#include"):], dir, file, lineNo, depth); err != nil {
				return err
			}
		default:
			p.tokenize(p.expand(line), file, lineNo)
		}
	}
	return nil
}

func (p *Parser) define(body string, file string, line int) {
	body = strings.TrimSpace(body)
	end := strings.IndexAny(body, " \t")
	if end < 0 {
		p.log.Debug("define without value", "file", file, "line", line)
		return
	}
	name := body[:end]
	if !strings.HasPrefix(name, "$") || len(name) < 2 {
		p.log.Debug("define name must start with $", "name", name, "file", file, "line", line)
		return
	}
	value := p.expand(strings.TrimSpace(body[end:]))
	if _, exists := p.defines[name]; !exists {
		p.names = append(p.names, name)
		sort.SliceStable(p.names, func(i, j int) bool {
			return len(p.names[i]) > len(p.names[j])
		})
	}
	p.defines[name] = value
}

// expand substitutes defines. At each '$' the candidates are tried longest
// name first, so $KEY never matches inside $KEY2.
func (p *Parser) expand(line string) string {
	if len(p.names) == 0 || strings.IndexByte(line, '$') < 0 {
		return line
	}
	var out strings.Builder
	out.Grow(len(line))
	for i := 0; i < len(line); {
		if line[i] == '$' {
			matched := false
			for _, name := range p.names {
				if strings.HasPrefix(line[i:], name) {
					out.WriteString(p.defines[name])
					i += len(name)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}
		out.WriteByte(line[i])
		i++
	}
	return out.String()
}

func (p *Parser) include(body string, dir string, file string, line int, depth int) error {
	target, ok := quotedPath(p.expand(strings.TrimSpace(body)))
	if !ok {
		p.log.Debug("malformed include", "file", file, "line", line)
		return nil
	}
	path := resolvePath(dir, target)
	if p.opts.IncludeGuard && p.open[path] {
		p.res.SkippedIncludes++
		p.log.Debug("include already open, skipped", "path", path, "file", file, "line", line)
		return nil
	}
	data, err := p.opts.ReadFile(path)
	if err != nil {
		return fmt.Errorf("include %q at %s:%d: %w", target, file, line, err)
	}
	return p.process(string(data), path, depth+1)
}

func quotedPath(s string) (string, bool) {
	if len(s) < 2 || s[0] != '"' {
		return "", false
	}
	end := strings.IndexByte(s[1:], '"')
	if end <= 0 {
		return "", false
	}
	return s[1 : end+1], true
}

// resolvePath accepts either separator regardless of the host convention.
func resolvePath(dir string, target string) string {
	target = filepath.FromSlash(strings.ReplaceAll(target, `\`, "/"))
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	return canonicalPath(target)
}

func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

// stripComment cuts a line at the first // that is not inside double quotes.
func stripComment(line string) string {
	inQuote := false
	for i := 0; i+1 < len(line); i++ {
		switch {
		case line[i] == '"':
			inQuote = !inQuote
		case !inQuote && line[i] == '/' && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

func (p *Parser) tokenize(line string, file string, lineNo int) {
	for i := 0; i < len(line); {
		if isSpace(line[i]) {
			i++
			continue
		}
		if line[i] == '<' {
			end := strings.IndexByte(line[i:], '>')
			if end < 0 {
				p.log.Debug("unterminated header", "file", file, "line", lineNo)
				return
			}
			name := strings.TrimSpace(line[i+1 : i+end])
			p.res.Tokens = append(p.res.Tokens, Token{
				Kind:   TokenHeader,
				Header: headerFromName(name),
				Name:   name,
				File:   file,
				Line:   lineNo,
			})
			i += end + 1
			continue
		}
		start := i
		for i < len(line) && isNameChar(line[i]) {
			i++
		}
		if i == start || i >= len(line) || line[i] != '=' {
			// Not an opcode: skip the stray word.
			for i < len(line) && !isSpace(line[i]) && line[i] != '<' {
				i++
			}
			p.log.Debug("stray text ignored", "text", line[start:i], "file", file, "line", lineNo)
			continue
		}
		name := line[start:i]
		i++
		end := valueEnd(line, i)
		p.res.Tokens = append(p.res.Tokens, Token{
			Kind:   TokenOpcode,
			Opcode: opcode.Parse(name, line[i:end]),
			File:   file,
			Line:   lineNo,
		})
		i = end
	}
}

// valueEnd finds where an opcode value stops: at the next header or at the
// whitespace before the next name=. Values may contain spaces.
func valueEnd(line string, from int) int {
	for j := from; j < len(line); j++ {
		if line[j] == '<' {
			return j
		}
		if !isSpace(line[j]) {
			continue
		}
		k := j
		for k < len(line) && isSpace(line[k]) {
			k++
		}
		m := k
		for m < len(line) && isNameChar(line[m]) {
			m++
		}
		if m > k && m < len(line) && line[m] == '=' {
			return j
		}
		if k < len(line) && line[k] == '<' {
			return j
		}
	}
	return len(line)
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' || b == '\n' }

func isNameChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
