package gql

import (
	"sort"

	"github.com/graphql-go/graphql"
)

type AuthUsage struct {
	Type  string `json:"type"`
	Field string `json:"field"`
	File  string `json:"file"`
}

type AuthFinding struct {
	File   string      `json:"file"`
	Usages []AuthUsage `json:"usages"`
}

// AuthReport maps a type authorized in its parent to the fields that expose it unchecked.
type AuthReport map[string]AuthFinding

// CheckAuthorization lists every field that returns a type marked AuthorizedInParent without
// authorizing. A field on a type that is itself AuthorizedInParent is covered when that type has
// no findings of its own.
func (r *Registry) CheckAuthorization() AuthReport {
	report := AuthReport{}
	state := map[string]int{}

	var covered func(name string) bool
	covered = func(name string) bool {
		switch state[name] {
		case 1:
			// cycle: only reachable through itself
			return false
		case 2:
			_, failed := report[name]
			return !failed
		}
		state[name] = 1

		usages := []AuthUsage{}
		for _, ownerName := range r.order {
			if ownerName == name {
				continue
			}

			owner := r.objects[ownerName]
			for _, f := range owner.spec.Fields {
				if namedType(f.Type) != name || f.Authorize != "" {
					continue
				}
				if owner.spec.AuthorizedInParent && covered(ownerName) {
					continue
				}

				usages = append(usages, AuthUsage{Type: ownerName, Field: f.Name, File: owner.file})
			}
		}

		state[name] = 2
		if len(usages) != 0 {
			sort.Slice(usages, func(i, j int) bool {
				if usages[i].Type != usages[j].Type {
					return usages[i].Type < usages[j].Type
				}
				return usages[i].Field < usages[j].Field
			})
			report[name] = AuthFinding{File: r.objects[name].file, Usages: usages}
		}

		return len(usages) == 0
	}

	for _, name := range r.order {
		if r.objects[name].spec.AuthorizedInParent {
			covered(name)
		}
	}

	return report
}

func namedType(t graphql.Type) string {
	for {
		switch v := t.(type) {
		case *graphql.NonNull:
			t = v.OfType
		case *graphql.List:
			t = v.OfType
		case nil:
			return ""
		default:
			return v.Name()
		}
	}
}
