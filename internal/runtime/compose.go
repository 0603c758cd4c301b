package runtime

import (
	"github.com/magicprompt/loom/pkg/domain"
)

// Compose renders a node's template strictly from fields already present in
// the snapshot. A placeholder referencing a missing field is a TemplateError:
// it means the graph lets this node run before an ancestor collected the
// field, which is an authoring defect, not a runtime condition.
func Compose(node *domain.Node, snapshot map[string]string) (string, error) {
	out, missing := domain.ExpandTemplate(node.Template, func(field string) (string, bool) {
		v, ok := snapshot[field]
		return v, ok
	})
	if missing != nil {
		return "", &domain.TemplateError{NodeID: node.ID, Field: *missing}
	}
	return out, nil
}
