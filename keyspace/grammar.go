// Package keyspace implements the key grammar enforced by the gateway.
//
// A key has the shape
//
//	cs:<producer>:<object>[:<instance-id>][:<function>]
//
// where producer and object must belong to configured allow-lists and the
// optional instance-id and function segments are word tokens. The grammar is
// a structured parser rather than a regular expression so its semantics stay
// explicit and independently testable. A Grammar is immutable after
// construction and safe for concurrent use.
package keyspace

import (
	"fmt"
	"strings"

	"github.com/threelight/redisgate/errors"
)

// Prefix is the fixed first segment of every gateway key.
const Prefix = "cs"

const separator = ":"

// Match holds the classified fields of a valid key.
type Match struct {
	Producer string
	Object   string
	Instance string // optional, empty when absent
	Function string // optional, empty when absent
}

// BaseKey returns the schema-selecting prefix cs:<producer>:<object>.
func (m Match) BaseKey() string {
	return strings.Join([]string{Prefix, m.Producer, m.Object}, separator)
}

// Grammar classifies candidate keys against the producer and object
// allow-lists fixed at construction time.
type Grammar struct {
	producers map[string]struct{}
	objects   map[string]struct{}
}

// NewGrammar builds a grammar from the allow-lists of valid producer and
// object names. Both lists must be non-empty.
func NewGrammar(producers, objects []string) (*Grammar, error) {
	if len(producers) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Grammar", "NewGrammar", "producer allow-list is empty")
	}
	if len(objects) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Grammar", "NewGrammar", "object allow-list is empty")
	}

	g := &Grammar{
		producers: make(map[string]struct{}, len(producers)),
		objects:   make(map[string]struct{}, len(objects)),
	}
	for _, p := range producers {
		if !isWordToken(p) {
			return nil, errors.WrapFatal(errors.ErrInvalidConfig, "Grammar", "NewGrammar",
				fmt.Sprintf("producer name %q is not a word token", p))
		}
		g.producers[p] = struct{}{}
	}
	for _, o := range objects {
		if !isWordToken(o) {
			return nil, errors.WrapFatal(errors.ErrInvalidConfig, "Grammar", "NewGrammar",
				fmt.Sprintf("object name %q is not a word token", o))
		}
		g.objects[o] = struct{}{}
	}
	return g, nil
}

// Classify splits a key on ':' and validates every segment. The second
// return value is false when the key does not match the grammar exactly.
// A four-segment key assigns the fourth segment to the instance id; a
// five-segment key assigns instance id then function.
func (g *Grammar) Classify(key string) (Match, bool) {
	segments := strings.Split(key, separator)
	if len(segments) < 3 || len(segments) > 5 {
		return Match{}, false
	}
	if segments[0] != Prefix {
		return Match{}, false
	}
	if _, ok := g.producers[segments[1]]; !ok {
		return Match{}, false
	}
	if _, ok := g.objects[segments[2]]; !ok {
		return Match{}, false
	}

	m := Match{Producer: segments[1], Object: segments[2]}
	if len(segments) >= 4 {
		if !isWordToken(segments[3]) {
			return Match{}, false
		}
		m.Instance = segments[3]
	}
	if len(segments) == 5 {
		if !isWordToken(segments[4]) {
			return Match{}, false
		}
		m.Function = segments[4]
	}
	return m, true
}

// IsValid reports whether the key matches the grammar exactly.
func (g *Grammar) IsValid(key string) bool {
	_, ok := g.Classify(key)
	return ok
}

// BaseKey derives the first three segments of a key without validating
// segment membership. Callers that need validation use Classify.
func BaseKey(key string) string {
	segments := strings.SplitN(key, separator, 4)
	if len(segments) < 3 {
		return key
	}
	return strings.Join(segments[:3], separator)
}

// isWordToken reports whether s is a non-empty run of [A-Za-z0-9_].
func isWordToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
