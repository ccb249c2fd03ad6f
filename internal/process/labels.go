package process

import "github.com/nanocl-io/nanocld/internal/domain"

// BuildLabels returns the label set applied to every process (§4.3):
// ownership, namespace, init-container marker, and compose project grouping.
func BuildLabels(kind domain.ProcessKind, kindKey, namespace string, base map[string]string, isInit bool) map[string]string {
	labels := make(map[string]string, len(base)+4)
	for k, v := range base {
		labels[k] = v
	}
	labels[domain.LabelForKind(kind)] = kindKey
	if namespace != "" {
		labels[domain.LabelNamespace] = namespace
		labels[domain.LabelComposeProject] = "nanocl_" + namespace
	}
	if isInit {
		labels[domain.LabelInitC] = "true"
	} else {
		labels[domain.LabelNotInitC] = "true"
	}
	return labels
}
