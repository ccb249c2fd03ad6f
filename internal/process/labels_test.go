package process

import (
	"testing"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestBuildLabelsCargo(t *testing.T) {
	labels := BuildLabels(domain.ProcessKindCargo, "api.demo", "demo", nil, false)
	assert.Equal(t, "api.demo", labels[domain.LabelCargo])
	assert.Equal(t, "demo", labels[domain.LabelNamespace])
	assert.Equal(t, "nanocl_demo", labels[domain.LabelComposeProject])
	assert.Equal(t, "true", labels[domain.LabelNotInitC])
	_, hasInit := labels[domain.LabelInitC]
	assert.False(t, hasInit)
}

func TestBuildLabelsInitContainer(t *testing.T) {
	labels := BuildLabels(domain.ProcessKindCargo, "api.demo", "demo", nil, true)
	assert.Equal(t, "true", labels[domain.LabelInitC])
	_, hasNotInit := labels[domain.LabelNotInitC]
	assert.False(t, hasNotInit)
}

func TestGenerateShortIDLengthAndAlphabet(t *testing.T) {
	id := GenerateShortID(6)
	assert.Len(t, id, 6)
	for _, r := range id {
		assert.Contains(t, shortIDAlphabet, string(r))
	}
}

func TestMainNameShape(t *testing.T) {
	name := MainName("api", "demo", "c")
	assert.Regexp(t, `^api-[a-z0-9]{6}\.demo\.c$`, name)
}

func TestTmpNamePrefixes(t *testing.T) {
	assert.Equal(t, "tmp-api-ab12cd.demo.c", TmpName("api-ab12cd.demo.c"))
}
