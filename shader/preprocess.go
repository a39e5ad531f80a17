package shader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const maxIncludeDepth = 32

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// preprocessor expands includes and conditional blocks and substitutes
// macros. An include is emitted once; repeats expand to nothing.
type preprocessor struct {
	shaderDir string
	defines   map[string]string
	seen      map[string]bool
	includes  []string
}

func newPreprocessor(shaderDir string, macros []Macro) *preprocessor {
	p := &preprocessor{
		shaderDir: shaderDir,
		defines:   make(map[string]string, len(macros)),
		seen:      make(map[string]bool),
	}
	for _, m := range macros {
		v := m.Value
		if v == "" {
			v = "1"
		}
		p.defines[m.Name] = v
	}
	return p
}

// Includes returns the absolute paths of every file pulled in by #include,
// in first-inclusion order.
func (p *preprocessor) Includes() []string { return p.includes }

// Process expands the file at path.
func (p *preprocessor) Process(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	p.seen[abs] = true
	var sb strings.Builder
	if err := p.file(&sb, abs, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type condFrame struct {
	active    bool // lines in this branch are emitted
	parent    bool // the enclosing block is emitted
	satisfied bool // some branch of this block has been taken
}

func (p *preprocessor) file(sb *strings.Builder, path string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("%w: %s: includes nested deeper than %d", ErrPreprocess, path, maxIncludeDepth)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var stack []condFrame
	active := func() bool { return len(stack) == 0 || stack[len(stack)-1].active }

	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if active() {
				sb.WriteString(p.substitute(line))
				sb.WriteByte('\n')
			}
			continue
		}
		where := fmt.Sprintf("%s:%d", path, n+1)
		directive, arg, _ := strings.Cut(trimmed[1:], " ")
		arg = strings.TrimSpace(arg)

		switch directive {
		case "ifdef", "ifndef", "if":
			on := active()
			var cond bool
			switch directive {
			case "ifdef":
				_, cond = p.defines[arg]
			case "ifndef":
				_, cond = p.defines[arg]
				cond = !cond
			default:
				cond = p.truthy(arg)
			}
			stack = append(stack, condFrame{active: on && cond, parent: on, satisfied: cond})
		case "elif":
			if len(stack) == 0 {
				return fmt.Errorf("%w: %s: #elif without #if", ErrPreprocess, where)
			}
			top := &stack[len(stack)-1]
			cond := !top.satisfied && p.truthy(arg)
			top.active = top.parent && cond
			top.satisfied = top.satisfied || cond
		case "else":
			if len(stack) == 0 {
				return fmt.Errorf("%w: %s: #else without #if", ErrPreprocess, where)
			}
			top := &stack[len(stack)-1]
			top.active = top.parent && !top.satisfied
			top.satisfied = true
		case "endif":
			if len(stack) == 0 {
				return fmt.Errorf("%w: %s: #endif without #if", ErrPreprocess, where)
			}
			stack = stack[:len(stack)-1]
		case "define":
			if !active() {
				continue
			}
			name, value, _ := strings.Cut(arg, " ")
			if name == "" {
				return fmt.Errorf("%w: %s: #define without a name", ErrPreprocess, where)
			}
			value = strings.TrimSpace(value)
			if value == "" {
				value = "1"
			}
			p.defines[name] = value
		case "undef":
			if active() {
				delete(p.defines, arg)
			}
		case "include":
			if !active() {
				continue
			}
			name := strings.Trim(arg, `"<>`)
			if name == "" {
				return fmt.Errorf("%w: %s: empty #include", ErrPreprocess, where)
			}
			inc, err := p.resolve(name, filepath.Dir(path))
			if err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
			if p.seen[inc] {
				continue
			}
			p.seen[inc] = true
			p.includes = append(p.includes, inc)
			if err := p.file(sb, inc, depth+1); err != nil {
				return err
			}
		case "pragma":
			// Ignored.
		default:
			return fmt.Errorf("%w: %s: unknown directive #%s", ErrPreprocess, where, directive)
		}
	}
	if len(stack) != 0 {
		return fmt.Errorf("%w: %s: unterminated #if", ErrPreprocess, path)
	}
	return nil
}

// resolve looks name up in the shader directory first and then next to
// the including file.
func (p *preprocessor) resolve(name, parent string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return filepath.Clean(name), nil
		}
		return "", fmt.Errorf("%w: %s", ErrInclude, name)
	}
	for _, dir := range []string{p.shaderDir, parent} {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInclude, name)
}

func (p *preprocessor) truthy(expr string) bool {
	expr = strings.TrimSpace(expr)
	if name, ok := strings.CutPrefix(expr, "defined"); ok {
		name = strings.Trim(strings.TrimSpace(name), "()")
		_, def := p.defines[strings.TrimSpace(name)]
		return def
	}
	// Identifiers resolve through their definitions; an undefined one is 0.
	for range 8 {
		if expr == "true" || expr == "false" || !isIdent(expr) {
			break
		}
		v, ok := p.defines[expr]
		if !ok {
			return false
		}
		expr = v
	}
	return expr != "" && expr != "0" && expr != "false"
}

func isIdent(s string) bool {
	loc := identRe.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

func (p *preprocessor) substitute(line string) string {
	if len(p.defines) == 0 {
		return line
	}
	return identRe.ReplaceAllStringFunc(line, func(id string) string {
		if v, ok := p.defines[id]; ok {
			return v
		}
		return id
	})
}
