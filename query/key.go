// Package query implements the generic read-through query execution path:
// key construction, single-flight deduplication, and the executor itself.
package query

import "strings"

// BuildKey substitutes {name} placeholders in template with the stringified
// value from params. A placeholder with no matching param is left as the
// literal "{name}". If template is empty, the key is
// "queryName:" + joined parameter values in declared order.
func BuildKey(template, queryName string, paramNames []string, params map[string]string) string {
	if template == "" {
		values := make([]string, len(paramNames))
		for i, name := range paramNames {
			values[i] = params[name]
		}
		return queryName + ":" + strings.Join(values, ":")
	}
	return substitute(template, params)
}

// BuildPattern renders template for use as an invalidation pattern: missing
// placeholders become "*" instead of being left literal.
func BuildPattern(template string, data map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		start := strings.IndexByte(template[i:], '{')
		if start < 0 {
			b.WriteString(template[i:])
			break
		}
		start += i
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			b.WriteString(template[i:])
			break
		}
		end += start
		b.WriteString(template[i:start])
		name := template[start+1 : end]
		if v, ok := data[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteByte('*')
		}
		i = end + 1
	}
	return b.String()
}

func substitute(template string, params map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		start := strings.IndexByte(template[i:], '{')
		if start < 0 {
			b.WriteString(template[i:])
			break
		}
		start += i
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			b.WriteString(template[i:])
			break
		}
		end += start
		b.WriteString(template[i:start])
		name := template[start+1 : end]
		if v, ok := params[name]; ok {
			b.WriteString(v)
		} else {
			// unbound placeholder stays literal
			b.WriteString(template[start : end+1])
		}
		i = end + 1
	}
	return b.String()
}
