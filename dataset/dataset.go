// Package dataset implements the hand-written scanner for the
// whitespace-delimited `key[=value]` grammar of spec §4.1. The original
// mtconnect agent parses this with a regex plus ad hoc escape handling
// (see SPEC_FULL.md's Design Notes); this scanner walks the input
// character by character instead, so every delimiter/escape rule is a
// single, auditable branch.
package dataset

import (
	"strconv"
	"strings"

	"github.com/mtconnect/agent/coreerr"
	"github.com/mtconnect/agent/observation"
)

// Result is the outcome of parsing one VALUE token for a DATA_SET or
// TABLE representation data item.
type Result struct {
	Set            observation.DataSet
	ResetTriggered string
}

// ParseDataSet parses text as a flat data set (spec §4.1, DATA_SET
// representation). A bare scalar value is not a concept at this level
// (every entry is `key` or `key=value`), so this never fails on that
// account; it fails on an unterminated quote/brace, or on an entry with
// an empty key (e.g. a stray `=`).
func ParseDataSet(text string) (Result, error) {
	p := &parser{input: text}
	set, reset, err := p.parseEntries(false)
	return Result{Set: set, ResetTriggered: reset}, err
}



// ParseTable parses text as a table (spec §4.1, TABLE representation):
// same grammar, but every entry's value must itself be a brace-delimited
// nested entry list (a table "row"); a bare scalar at the top level is a
// parse failure.
func ParseTable(text string) (Result, error) {
	p := &parser{input: text}
	set, reset, err := p.parseEntries(true)
	return Result{Set: set, ResetTriggered: reset}, err
}

type parser struct {
	input string
	pos   int
}

func (p *parser) parseEntries(table bool) (observation.DataSet, string, error) {
	var set observation.DataSet
	var reset string

	p.skipSpace()
	if p.peekByte() == ':' {
		p.pos++
		kind := p.scanBareWord()
		reset = kind
		p.skipSpace()
	}

	for !p.atEnd() {
		entry, err := p.parseEntry(table)
		if err != nil {
			return set, reset, err
		}
		set = upsert(set, entry)
		p.skipSpace()
	}
	return set, reset, nil
}

// upsert applies last-token-wins semantics within a single VALUE token:
// spec §4.1 doesn't require per-token de-duplication explicitly, but
// checkpoint merge (§4.2) assumes a data set's own entries have unique
// keys, so a single parse never produces two entries with the same key.
func upsert(set observation.DataSet, e observation.Entry) observation.DataSet {
	for i := range set.Entries {
		if set.Entries[i].Key == e.Key {
			set.Entries[i] = e
			return set
		}
	}
	set.Entries = append(set.Entries, e)
	return set
}

func (p *parser) parseEntry(table bool) (observation.Entry, error) {
	key := p.scanKey()
	if key == "" {
		return observation.Entry{}, coreerr.Parse("empty key at offset %d", p.pos)
	}

	if p.peekByte() != '=' {
		// bare KEY: removal
		return observation.Entry{Key: key, Removed: true}, nil
	}
	p.pos++ // consume '='

	if p.atEnd() || isSpace(p.peekByte()) {
		// KEY= with nothing following: removal
		return observation.Entry{Key: key, Removed: true}, nil
	}

	if table {
		if p.peekByte() != '{' {
			return observation.Entry{}, coreerr.Parse("table entry %q must be a nested brace group", key)
		}
		nested, err := p.parseNestedTable()
		if err != nil {
			return observation.Entry{}, err
		}
		return observation.Entry{Key: key, Cell: nested}, nil
	}

	value, err := p.scanValue()
	if err != nil {
		return observation.Entry{}, err
	}
	return observation.Entry{Key: key, Value: coerce(value)}, nil
}

// parseNestedTable parses a `{ entries }` table cell: a nested,
// brace-delimited entry list with its own escaping/quoting rules,
// recursively using the flat (non-table) entry grammar.
func (p *parser) parseNestedTable() (*observation.DataSet, error) {
	p.pos++ // consume '{'
	start := p.pos
	depth := 1
	var b strings.Builder
	for {
		if p.atEnd() {
			return nil, coreerr.Parse("unterminated table cell starting at offset %d", start)
		}
		c := p.input[p.pos]
		if c == '\\' && p.pos+1 < len(p.input) {
			b.WriteByte(p.input[p.pos+1])
			p.pos += 2
			continue
		}
		if c == '{' {
			depth++
		} else if c == '}' {
			depth--
			if depth == 0 {
				p.pos++
				break
			}
		}
		b.WriteByte(c)
		p.pos++
	}
	cellParser := &parser{input: b.String()}
	set, _, err := cellParser.parseEntries(false)
	if err != nil {
		return nil, err
	}
	return &set, nil
}

func (p *parser) scanKey() string {
	start := p.pos
	for !p.atEnd() {
		c := p.input[p.pos]
		if isSpace(c) || c == '=' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *parser) scanBareWord() string {
	start := p.pos
	for !p.atEnd() && !isSpace(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *parser) scanValue() (string, error) {
	switch p.peekByte() {
	case '"':
		return p.scanDelimited('"')
	case '\'':
		return p.scanDelimited('\'')
	case '{':
		return p.scanBraced()
	default:
		return p.scanBareWord(), nil
	}
}

func (p *parser) scanDelimited(quote byte) (string, error) {
	start := p.pos
	p.pos++ // consume opening quote
	var b strings.Builder
	for {
		if p.atEnd() {
			return "", coreerr.Parse("unterminated quote starting at offset %d", start)
		}
		c := p.input[p.pos]
		if c == '\\' && p.pos+1 < len(p.input) {
			b.WriteByte(p.input[p.pos+1])
			p.pos += 2
			continue
		}
		if c == quote {
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
}

func (p *parser) scanBraced() (string, error) {
	start := p.pos
	p.pos++ // consume '{'
	var b strings.Builder
	for {
		if p.atEnd() {
			return "", coreerr.Parse("unterminated brace starting at offset %d", start)
		}
		c := p.input[p.pos]
		if c == '\\' && p.pos+1 < len(p.input) {
			b.WriteByte(p.input[p.pos+1])
			p.pos += 2
			continue
		}
		if c == '}' {
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
}

func (p *parser) skipSpace() {
	for !p.atEnd() && isSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *parser) peekByte() byte {
	if p.atEnd() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) atEnd() bool { return p.pos >= len(p.input) }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// Coerce applies the same integer/double/string coercion rule used
// inside data-set/table entries to a single bare scalar value — shared
// by the ingest pipeline's ConvertValue transform (spec §4.5) so a plain
// SAMPLE/EVENT value and a data-set entry value follow one rule.
func Coerce(raw string) observation.Scalar { return coerce(raw) }

// coerce decides the scalar kind a raw value string parses as: integer,
// double, or string. A partial numeric prefix (e.g. "1Bch", "2.x") stays
// a string — strconv's full-string parse naturally rejects trailing
// garbage, which is exactly the behavior spec §4.1 calls for.
func coerce(raw string) observation.Scalar {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return observation.NewIntScalar(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return observation.NewDoubleScalar(f)
	}
	return observation.NewStringScalar(raw)
}

// Serialize renders a data set back into the `key[=value]` token syntax,
// quoting any value containing whitespace. Used by the round-trip test
// in spec §8 (property 6).
func Serialize(set observation.DataSet) string {
	var b strings.Builder
	for i, e := range set.Entries {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Key)
		if e.Removed {
			continue
		}
		b.WriteByte('=')
		v := e.Value.String()
		if strings.ContainsAny(v, " \t\r\n\"'{}") {
			b.WriteByte('"')
			b.WriteString(strings.NewReplacer(`"`, `\"`).Replace(v))
			b.WriteByte('"')
		} else {
			b.WriteString(v)
		}
	}
	return b.String()
}
