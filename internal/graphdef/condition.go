package graphdef

import (
	"fmt"

	"github.com/magicprompt/loom/pkg/domain"
)

// parseCondition decodes the YAML condition shorthand into the tagged domain
// variant. Accepted forms:
//
//	when: {equals: {field: genre, value: photography}}
//	when: {not_equals: {field: genre, value: photo}}
//	when: {present: camera}            # or {present: {field: camera}}
//	when: {absent: camera}
//	when: {all: [<cond>, <cond>]}
//	when: {any: [<cond>, <cond>]}
//	when: {not: <cond>}
func parseCondition(raw any) (*domain.Condition, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("condition must be a mapping, got %T", raw)
	}
	if len(m) != 1 {
		return nil, fmt.Errorf("condition must have exactly one kind, got %d", len(m))
	}
	for kind, body := range m {
		switch kind {
		case domain.CondEquals, domain.CondNotEquals:
			fv, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s condition needs field/value mapping", kind)
			}
			field, _ := fv["field"].(string)
			value := fmt.Sprintf("%v", fv["value"])
			if _, has := fv["value"]; !has {
				return nil, fmt.Errorf("%s condition missing value", kind)
			}
			return &domain.Condition{Kind: kind, Field: field, Value: value}, nil

		case domain.CondPresent, domain.CondAbsent:
			switch b := body.(type) {
			case string:
				return &domain.Condition{Kind: kind, Field: b}, nil
			case map[string]any:
				field, _ := b["field"].(string)
				return &domain.Condition{Kind: kind, Field: field}, nil
			default:
				return nil, fmt.Errorf("%s condition needs a field name", kind)
			}

		case domain.CondAll, domain.CondAny:
			list, ok := body.([]any)
			if !ok {
				return nil, fmt.Errorf("%s condition needs a list of terms", kind)
			}
			terms := make([]*domain.Condition, 0, len(list))
			for _, item := range list {
				term, err := parseCondition(item)
				if err != nil {
					return nil, err
				}
				terms = append(terms, term)
			}
			return &domain.Condition{Kind: kind, Terms: terms}, nil

		case domain.CondNot:
			term, err := parseCondition(body)
			if err != nil {
				return nil, err
			}
			return &domain.Condition{Kind: domain.CondNot, Term: term}, nil

		default:
			return nil, fmt.Errorf("unknown condition kind %q", kind)
		}
	}
	return nil, nil
}
