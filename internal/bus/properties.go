package bus

// Properties is a raw property mapping as returned by GetAll. Values are
// plain Go values; transport variants are unwrapped before delivery.
type Properties map[string]any

func (p Properties) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

func (p Properties) Bool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

func (p Properties) Strings(key string) ([]string, bool) {
	switch v := p[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Maps reads an array of string-keyed dictionaries, e.g. channel filters.
func (p Properties) Maps(key string) ([]Properties, bool) {
	switch v := p[key].(type) {
	case []Properties:
		return v, true
	case []map[string]any:
		out := make([]Properties, 0, len(v))
		for _, m := range v {
			out = append(out, Properties(m))
		}
		return out, true
	case []any:
		out := make([]Properties, 0, len(v))
		for _, item := range v {
			m, ok := asProperties(item)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	default:
		return nil, false
	}
}

// Map reads a string-keyed dictionary value.
func (p Properties) Map(key string) (Properties, bool) {
	return asProperties(p[key])
}

// Uint32 reads an unsigned 32-bit value.
func (p Properties) Uint32(key string) (uint32, bool) {
	v, ok := p[key].(uint32)
	return v, ok
}

// Clone returns a shallow copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func asProperties(v any) (Properties, bool) {
	switch m := v.(type) {
	case Properties:
		return m, true
	case map[string]any:
		return Properties(m), true
	default:
		return nil, false
	}
}
