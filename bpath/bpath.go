// Package bpath canonicalizes slash-separated paths expressed as
// ustr.Ustr, resolving "." and ".." components without touching the
// filesystem. No interface file for this package survived retrieval, so
// its shape is reconstructed from call sites in vfs.Cwd_t.
package bpath

import "vesper/ustr"

// Canonicalize resolves "." and ".." components in p, returning a
// slash-separated path with no trailing slash (except the root itself)
// that is absolute only when p is. A result with no components is "/".
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	abs := p.IsAbsolute()
	parts := split(p)
	var stack []ustr.Ustr
	for _, part := range parts {
		switch {
		case len(part) == 0:
			continue
		case part.Isdot():
			continue
		case part.Isdotdot():
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	out := ustr.Ustr{}
	if abs {
		out = append(out, '/')
	}
	for i, part := range stack {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, part...)
	}
	if len(out) == 0 {
		out = ustr.MkUstrRoot()
	}
	return out
}

func split(p ustr.Ustr) []ustr.Ustr {
	var parts []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
