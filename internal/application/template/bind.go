package template

// Upstream is the text produced by a direct predecessor of a step
type Upstream struct {
	ID    string
	Label string
	Text  string
}

// BindUpstream builds the bindings for a step's template. The input is
// bound to InputName and always wins; predecessor ids take precedence over
// labels, and the first predecessor wins a shared label.
func BindUpstream(input string, upstream []Upstream) Vars {
	vars := make(Vars, 2*len(upstream)+1)

	for _, u := range upstream {
		if u.Label == "" {
			continue
		}
		if _, taken := vars[u.Label]; !taken {
			vars[u.Label] = u.Text
		}
	}
	for _, u := range upstream {
		vars[u.ID] = u.Text
	}
	vars[InputName] = input

	return vars
}
