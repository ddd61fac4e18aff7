package gcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/timtadh/lexmachine"
	"github.com/timtadh/lexmachine/machines"

	"klipper-delta-filter/pkg/errors"
)

// DefaultVerb is the motion verb converted when none is configured.
const DefaultVerb = "G1"

// Token types produced by the lexer
const (
	tokParam = iota // Axis letter followed by a number, e.g. X-1.5
	tokWord         // Any other run of non-blank characters
)

// Parser recognizes motion lines and turns them into MotionCommands.
// The compiled lexer is read-only, so a Parser may be shared.
type Parser struct {
	verb  string
	lexer *lexmachine.Lexer
}

// NewParser compiles a parser for the given motion verb.
func NewParser(verb string) (*Parser, error) {
	verb = strings.TrimSpace(verb)
	if verb == "" || strings.ContainsAny(verb, " \t\r\n;(") {
		return nil, errors.ConfigValidationError("motion_verb", fmt.Sprintf("invalid verb %q", verb))
	}

	lexer := lexmachine.NewLexer()
	lexer.Add([]byte(`;[^\n]*`), skip)          // line comment
	lexer.Add([]byte(`\([^\)]*\)`), skip)       // paren comment
	lexer.Add([]byte(`( |\t|\r|\n)+`), skip)    // whitespace
	lexer.Add([]byte(`[XYZEFxyzef][\+\-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)`), token(tokParam))
	lexer.Add([]byte(`[^ \t\r\n;\(]+`), token(tokWord))
	if err := lexer.Compile(); err != nil {
		return nil, errors.Wrap(err, errors.ErrMalformedCommand, "compiling G-code lexer")
	}

	return &Parser{verb: verb, lexer: lexer}, nil
}

func skip(*lexmachine.Scanner, *machines.Match) (interface{}, error) {
	return nil, nil
}

func token(typ int) lexmachine.Action {
	return func(s *lexmachine.Scanner, m *machines.Match) (interface{}, error) {
		return s.Token(typ, string(m.Bytes), m), nil
	}
}

// Verb returns the configured motion verb.
func (p *Parser) Verb() string {
	return p.verb
}

// IsMotion reports whether the first word of line, after comments, is the motion verb.
func (p *Parser) IsMotion(line string) bool {
	scanner, err := p.lexer.Scanner([]byte(line))
	if err != nil {
		return false
	}
	return p.isVerb(scanner)
}

func (p *Parser) isVerb(scanner *lexmachine.Scanner) bool {
	tok, err, eos := scanner.Next()
	if eos || err != nil {
		return false
	}
	return strings.EqualFold(tok.(*lexmachine.Token).Value.(string), p.verb)
}

// ParseLine parses one line without its terminator. It returns ok=false for
// lines that are not motion commands; those pass through untouched. A motion
// line with anything other than axis parameters is a MALFORMED_COMMAND error.
func (p *Parser) ParseLine(line string) (cmd *MotionCommand, ok bool, err error) {
	scanner, err := p.lexer.Scanner([]byte(line))
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrMalformedCommand, "scanning line")
	}
	if !p.isVerb(scanner) {
		return nil, false, nil
	}

	axes := NewAxisValues()
	for tok, err, eos := scanner.Next(); !eos; tok, err, eos = scanner.Next() {
		if ui, is := err.(*machines.UnconsumedInput); is {
			rest := strings.TrimSpace(string(ui.Text[ui.StartTC:]))
			return nil, true, errors.MalformedCommandError(rest, "unterminated comment or stray character")
		} else if err != nil {
			return nil, true, errors.Wrap(err, errors.ErrMalformedCommand, "scanning line")
		}

		t := tok.(*lexmachine.Token)
		lexeme := t.Value.(string)
		if t.Type == tokWord {
			return nil, true, malformedWord(lexeme)
		}

		axis, err := ParseAxis(lexeme[:1])
		if err != nil {
			return nil, true, err
		}
		value, err := strconv.ParseFloat(lexeme[1:], 64)
		if err != nil {
			return nil, true, errors.MalformedCommandError(lexeme, "invalid number")
		}
		axes.Set(axis, value)
	}

	cmd, err = NewMotionCommand(p.verb, axes)
	if err != nil {
		return nil, true, err
	}
	return cmd, true, nil
}

func malformedWord(word string) error {
	if _, err := ParseAxis(word[:1]); err != nil {
		return errors.MalformedCommandError(word, "unknown axis")
	}
	if len(word) == 1 {
		return errors.MalformedCommandError(word, "missing value")
	}
	return errors.MalformedCommandError(word, "invalid number")
}
