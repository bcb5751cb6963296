package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/picman/core/pdb"
)

// parseArgs converts command line words into procedure arguments using the
// declared argument types. When one word is missing and the procedure
// takes a run mode first, the run mode defaults to non-interactive.
func parseArgs(proc *pdb.Procedure, words []string) (pdb.ValueArray, error) {
	if len(words) == len(proc.Args)-1 && len(proc.Args) > 0 && pdb.CanonicalizeIdentifier(proc.Args[0].Name) == "run-mode" {
		words = append([]string{"1"}, words...)
	}
	if len(words) != len(proc.Args) {
		return nil, fmt.Errorf("procedure '%s' takes %d arguments, got %d", proc.Name, len(proc.Args), len(words))
	}
	args := make(pdb.ValueArray, len(words))
	for i, w := range words {
		v, err := parseValue(proc.Args[i].Type, w)
		if err != nil {
			return nil, fmt.Errorf("argument #%d (%s): %w", i+1, proc.Args[i].Name, err)
		}
		args[i] = v
	}
	return args, nil
}

func parseInt(s string, bits int) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, bits)
	return int32(n), err
}

func parseValue(t pdb.ValueType, s string) (pdb.Value, error) {
	switch t {
	case pdb.ValueInt32, pdb.ValueEnum, pdb.ValueStatus:
		n, err := parseInt(s, 32)
		return pdb.Value{Type: t, Int: n}, err
	case pdb.ValueInt16:
		n, err := parseInt(s, 16)
		return pdb.Value{Type: t, Int: n}, err
	case pdb.ValueInt8:
		n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
		return pdb.Value{Type: t, Int: int32(n)}, err
	case pdb.ValueBoolean:
		b, err := strconv.ParseBool(s)
		return pdb.Bool(b), err
	case pdb.ValueFloat:
		f, err := strconv.ParseFloat(s, 64)
		return pdb.Float(f), err
	case pdb.ValueString:
		return pdb.String(s), nil
	case pdb.ValueStringArray:
		return pdb.StringArray(splitWords(s)...), nil
	case pdb.ValueInt32Array:
		var out []int32
		for _, w := range splitWords(s) {
			n, err := parseInt(w, 32)
			if err != nil {
				return pdb.Value{}, err
			}
			out = append(out, n)
		}
		return pdb.Int32Array(out...), nil
	case pdb.ValueInt16Array:
		var out []int16
		for _, w := range splitWords(s) {
			n, err := parseInt(w, 16)
			if err != nil {
				return pdb.Value{}, err
			}
			out = append(out, int16(n))
		}
		return pdb.Int16Array(out...), nil
	case pdb.ValueInt8Array:
		var out []byte
		for _, w := range splitWords(s) {
			n, err := strconv.ParseUint(w, 0, 8)
			if err != nil {
				return pdb.Value{}, err
			}
			out = append(out, byte(n))
		}
		return pdb.Int8Array(out), nil
	case pdb.ValueFloatArray:
		var out []float64
		for _, w := range splitWords(s) {
			f, err := strconv.ParseFloat(w, 64)
			if err != nil {
				return pdb.Value{}, err
			}
			out = append(out, f)
		}
		return pdb.FloatArray(out...), nil
	case pdb.ValueColor:
		c, err := parseColor(s)
		return pdb.ColorValue(c), err
	case pdb.ValueColorArray:
		var out []pdb.Color
		for _, part := range strings.Split(s, ";") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			c, err := parseColor(part)
			if err != nil {
				return pdb.Value{}, err
			}
			out = append(out, c)
		}
		return pdb.ColorArray(out...), nil
	}
	if t.IsObjectID() {
		n, err := parseInt(s, 32)
		return pdb.ObjectID(t, n), err
	}
	return pdb.Value{}, fmt.Errorf("cannot pass a %s on the command line", t)
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// parseColor reads "r,g,b" or "r,g,b,a" with components in [0, 1].
func parseColor(s string) (pdb.Color, error) {
	parts := splitWords(s)
	if len(parts) != 3 && len(parts) != 4 {
		return pdb.Color{}, fmt.Errorf("color %q needs 3 or 4 components", s)
	}
	c := [4]float64{3: 1}
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return pdb.Color{}, err
		}
		c[i] = f
	}
	return pdb.Color{R: c[0], G: c[1], B: c[2], A: c[3]}, nil
}
