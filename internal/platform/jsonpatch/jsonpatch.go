// Package jsonpatch applies JSON Patch documents (RFC 6902) to resources.
package jsonpatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// MIMEType is the content type of PATCH request bodies.
const MIMEType = "application/json-patch+json"

var (
	// ErrInvalidPatch is returned for malformed documents and operations
	// that cannot be applied.
	ErrInvalidPatch = errors.New("invalid patch")
	// ErrTestFailed is returned when a "test" operation does not hold.
	ErrTestFailed = errors.New("patch test failed")
)

type Operation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Parse decodes and checks a patch document.
func Parse(data []byte) ([]Operation, error) {
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: no operation", ErrInvalidPatch)
	}
	for i, op := range ops {
		if err := op.check(); err != nil {
			return nil, fmt.Errorf("%w: operation %d: %v", ErrInvalidPatch, i, err)
		}
	}
	return ops, nil
}

func (op Operation) check() error {
	if !strings.HasPrefix(op.Path, "/") {
		return fmt.Errorf("path %q must start with /", op.Path)
	}
	switch op.Op {
	case "add", "replace", "test":
		if len(op.Value) == 0 {
			return fmt.Errorf("%s requires a value", op.Op)
		}
	case "move", "copy":
		if !strings.HasPrefix(op.From, "/") {
			return fmt.Errorf("%s requires from", op.Op)
		}
		if op.Op == "move" && strings.HasPrefix(op.Path+"/", op.From+"/") {
			return fmt.Errorf("cannot move %s into itself", op.From)
		}
	case "remove":
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
	return nil
}

// Restrict fails when an operation touches a top-level property outside
// allowed.
func Restrict(ops []Operation, allowed ...string) error {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	for _, op := range ops {
		for _, p := range []string{op.Path, op.From} {
			if p == "" {
				continue
			}
			tokens := pointer(p)
			if len(tokens) == 0 {
				return fmt.Errorf("%w: %s cannot target the whole resource", ErrInvalidPatch, op.Op)
			}
			if _, ok := set[tokens[0]]; !ok {
				return fmt.Errorf("%w: %s is not patchable", ErrInvalidPatch, tokens[0])
			}
		}
	}
	return nil
}

// Apply patches a copy of target through its JSON representation.
func Apply[T any](target T, ops []Operation) (T, error) {
	var zero T
	raw, err := json.Marshal(target)
	if err != nil {
		return zero, fmt.Errorf("encode resource: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return zero, fmt.Errorf("decode resource: %w", err)
	}

	if doc, err = ApplyDocument(doc, ops); err != nil {
		return zero, err
	}

	if raw, err = json.Marshal(doc); err != nil {
		return zero, fmt.Errorf("encode patched resource: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return out, nil
}

// ApplyDocument applies ops in order to a decoded JSON document.
func ApplyDocument(doc interface{}, ops []Operation) (interface{}, error) {
	var err error
	for i, op := range ops {
		if doc, err = apply(doc, op); err != nil {
			if errors.Is(err, ErrTestFailed) {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			return nil, fmt.Errorf("%w: operation %d (%s %s): %v", ErrInvalidPatch, i, op.Op, op.Path, err)
		}
	}
	return doc, nil
}

func apply(doc interface{}, op Operation) (interface{}, error) {
	if err := op.check(); err != nil {
		return nil, err
	}
	path := pointer(op.Path)
	switch op.Op {
	case "add", "replace", "test":
		var v interface{}
		if err := json.Unmarshal(op.Value, &v); err != nil {
			return nil, err
		}
		switch op.Op {
		case "add":
			return add(doc, path, v)
		case "replace":
			doc, _, err := remove(doc, path)
			if err != nil {
				return nil, err
			}
			return add(doc, path, v)
		}
		actual, err := get(doc, path)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(actual, v) {
			return nil, fmt.Errorf("%w: %s is %s", ErrTestFailed, op.Path, encode(actual))
		}
		return doc, nil
	case "remove":
		doc, _, err := remove(doc, path)
		return doc, err
	case "move":
		doc, v, err := remove(doc, pointer(op.From))
		if err != nil {
			return nil, err
		}
		return add(doc, path, v)
	case "copy":
		v, err := get(doc, pointer(op.From))
		if err != nil {
			return nil, err
		}
		return add(doc, path, clone(v))
	}
	return nil, fmt.Errorf("unknown op %q", op.Op)
}

// pointer splits a JSON pointer into unescaped reference tokens.
func pointer(p string) []string {
	if p == "" || p == "/" {
		return nil
	}
	tokens := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, t := range tokens {
		tokens[i] = strings.ReplaceAll(strings.ReplaceAll(t, "~1", "/"), "~0", "~")
	}
	return tokens
}

func index(token string, length int, allowEnd bool) (int, error) {
	if token == "-" && allowEnd {
		return length, nil
	}
	i, err := strconv.Atoi(token)
	if err != nil || i < 0 || (token != "0" && strings.HasPrefix(token, "0")) {
		return 0, fmt.Errorf("invalid array index %q", token)
	}
	limit := length - 1
	if allowEnd {
		limit = length
	}
	if i > limit {
		return 0, fmt.Errorf("array index %d out of bounds", i)
	}
	return i, nil
}

func get(doc interface{}, path []string) (interface{}, error) {
	for _, token := range path {
		switch c := doc.(type) {
		case map[string]interface{}:
			v, ok := c[token]
			if !ok {
				return nil, fmt.Errorf("%s not found", token)
			}
			doc = v
		case []interface{}:
			i, err := index(token, len(c), false)
			if err != nil {
				return nil, err
			}
			doc = c[i]
		default:
			return nil, fmt.Errorf("cannot traverse into %s", token)
		}
	}
	return doc, nil
}

func add(doc interface{}, path []string, v interface{}) (interface{}, error) {
	if len(path) == 0 {
		return v, nil
	}
	token, rest := path[0], path[1:]
	switch c := doc.(type) {
	case map[string]interface{}:
		if len(rest) == 0 {
			c[token] = v
			return c, nil
		}
		child, ok := c[token]
		if !ok {
			return nil, fmt.Errorf("%s not found", token)
		}
		updated, err := add(child, rest, v)
		if err != nil {
			return nil, err
		}
		c[token] = updated
		return c, nil
	case []interface{}:
		if len(rest) == 0 {
			i, err := index(token, len(c), true)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, 0, len(c)+1)
			out = append(out, c[:i]...)
			out = append(out, v)
			return append(out, c[i:]...), nil
		}
		i, err := index(token, len(c), false)
		if err != nil {
			return nil, err
		}
		updated, err := add(c[i], rest, v)
		if err != nil {
			return nil, err
		}
		c[i] = updated
		return c, nil
	}
	return nil, fmt.Errorf("cannot add into %s", token)
}

func remove(doc interface{}, path []string) (interface{}, interface{}, error) {
	if len(path) == 0 {
		return nil, nil, errors.New("cannot remove the whole document")
	}
	token, rest := path[0], path[1:]
	switch c := doc.(type) {
	case map[string]interface{}:
		child, ok := c[token]
		if !ok {
			return nil, nil, fmt.Errorf("%s not found", token)
		}
		if len(rest) == 0 {
			delete(c, token)
			return c, child, nil
		}
		updated, removed, err := remove(child, rest)
		if err != nil {
			return nil, nil, err
		}
		c[token] = updated
		return c, removed, nil
	case []interface{}:
		i, err := index(token, len(c), false)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) == 0 {
			removed := c[i]
			out := make([]interface{}, 0, len(c)-1)
			out = append(out, c[:i]...)
			return append(out, c[i+1:]...), removed, nil
		}
		updated, removed, err := remove(c[i], rest)
		if err != nil {
			return nil, nil, err
		}
		c[i] = updated
		return c, removed, nil
	}
	return nil, nil, fmt.Errorf("cannot remove from %s", token)
}

func clone(v interface{}) interface{} {
	raw, _ := json.Marshal(v)
	var out interface{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func encode(v interface{}) string {
	var b bytes.Buffer
	_ = json.NewEncoder(&b).Encode(v)
	return strings.TrimSpace(b.String())
}
