package lp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// WriteLP writes the problem in CPLEX LP text format. The output is
// deterministic: variables and constraints appear in insertion order.
func WriteLP(w io.Writer, p *Problem) error {
	bw := bufio.NewWriter(w)
	names := make([]string, len(p.vars))
	for i, v := range p.vars {
		names[i] = LPName(v.Name)
	}

	fmt.Fprintln(bw, `\ enmod`)
	fmt.Fprintln(bw, "Minimize")
	obj := p.objective
	if len(obj.Terms) == 0 {
		fmt.Fprintln(bw, " obj: 0")
	} else {
		fmt.Fprintf(bw, " obj:%s\n", formatTerms(obj.Terms, names))
	}
	if obj.Constant != 0 {
		fmt.Fprintf(bw, "\\ objective constant %s\n", formatNumber(obj.Constant))
	}

	fmt.Fprintln(bw, "Subject To")
	for _, c := range p.cons {
		fmt.Fprintf(bw, " %s:%s %s %s\n", LPName(c.Name), formatTerms(c.Terms, names), c.Sense, formatNumber(c.RHS))
	}

	fmt.Fprintln(bw, "Bounds")
	var generals, binaries []string
	for i, v := range p.vars {
		switch v.Domain {
		case Integer:
			generals = append(generals, names[i])
		case Binary:
			binaries = append(binaries, names[i])
			if v.Lower == 0 && v.Upper == 1 {
				continue
			}
		}
		switch {
		case math.IsInf(v.Lower, -1) && math.IsInf(v.Upper, 1):
			fmt.Fprintf(bw, " %s free\n", names[i])
		case v.Lower == v.Upper:
			fmt.Fprintf(bw, " %s = %s\n", names[i], formatNumber(v.Lower))
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", formatNumber(v.Lower), names[i], formatNumber(v.Upper))
		}
	}
	if len(generals) > 0 {
		fmt.Fprintln(bw, "Generals")
		for _, n := range generals {
			fmt.Fprintf(bw, " %s\n", n)
		}
	}
	if len(binaries) > 0 {
		fmt.Fprintln(bw, "Binaries")
		for _, n := range binaries {
			fmt.Fprintf(bw, " %s\n", n)
		}
	}
	if len(p.sos2) > 0 {
		fmt.Fprintln(bw, "SOS")
		for _, s := range p.sos2 {
			fmt.Fprintf(bw, " %s: S2::", LPName(s.Name))
			for k, v := range s.Vars {
				fmt.Fprintf(bw, " %s:%s", names[v], formatNumber(s.Weights[k]))
			}
			fmt.Fprintln(bw)
		}
	}
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

func formatTerms(terms []Term, names []string) string {
	var b strings.Builder
	for _, t := range terms {
		sign := "+"
		if t.Coef < 0 {
			sign = "-"
		}
		fmt.Fprintf(&b, " %s %s %s", sign, formatNumber(math.Abs(t.Coef)), names[t.Var])
	}
	return b.String()
}

func formatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	case v == 0:
		return "0"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// LPName maps a model name to an identifier accepted by LP-format readers.
// Brackets become parentheses; other unsupported characters become '_'.
func LPName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '[':
			b.WriteByte('(')
		case r == ']':
			b.WriteByte(')')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9', r == '.':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		case strings.ContainsRune("!\"#$%&()/,;?@`'{}|~", r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
