package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry(newMockProvider("salary_survey"))

	got := r.Get("salary_survey")
	require.NotNil(t, got)
	assert.Equal(t, "salary_survey", got.Name())
	assert.Nil(t, r.Get("nonexistent"))
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry(newMockProvider("job_board"), newMockProvider("crowd"), newMockProvider("salary_survey"))
	assert.Equal(t, []string{"crowd", "job_board", "salary_survey"}, r.Names())
}

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry(newMockProvider("job_board"), newMockProvider("crowd"), newMockProvider("salary_survey"))

	all, err := r.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := r.Select([]string{"salary_survey", "crowd", "crowd"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "crowd", some[0].Name())
	assert.Equal(t, "salary_survey", some[1].Name())

	_, err = r.Select([]string{"missing"})
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestSourceFailure_Error(t *testing.T) {
	f := SourceFailure{Source: "job_board", Err: ErrNoData}
	assert.Contains(t, f.Error(), "job_board")
	assert.ErrorIs(t, f, ErrNoData)
}
