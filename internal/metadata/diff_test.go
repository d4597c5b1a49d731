package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffNoChanges(t *testing.T) {
	doc := mustNormalize(t, twoSourceDoc)

	report := Diff(doc, doc.Clone())
	assert.False(t, report.HasChanges)
	assert.Empty(t, report.Items)
	assert.NotNil(t, report.Items)
	assert.Empty(t, report.Roles)
}

func TestDiffClone(t *testing.T) {
	doc := mustNormalize(t, twoSourceDoc)

	report := Diff(doc, CloneRolePermissions(doc, "admin", "viewer"))
	assert.True(t, report.HasChanges)
	assert.Equal(t, 3, report.Added)
	assert.Equal(t, 0, report.Removed)
	assert.Equal(t, 0, report.Modified)
	assert.Equal(t, []string{"viewer"}, report.Roles)

	first := report.Items[0]
	assert.Equal(t, ChangeAdded, first.Type)
	assert.Equal(t, "main", first.Source)
	assert.Equal(t, "public.users", first.Table)
	assert.Equal(t, KindSelect, first.Kind)
	assert.Equal(t, `Role "viewer" gains select on public.users`, first.Description)
}

func TestDiffRemoveAndModify(t *testing.T) {
	doc := mustNormalize(t, twoSourceDoc)

	edited := RemoveRole(doc, "auditor")
	edited = CloneRolePermissions(edited, "admin", "user")

	report := Diff(doc, edited)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.Modified)
	assert.Equal(t, 2, report.Added, "user gains update and delete")

	require.Len(t, report.Items, 4)
	last := report.Items[3]
	assert.Equal(t, ChangeRemoved, last.Type)
	assert.Equal(t, "auditor", last.Role)
	assert.Equal(t, "audit.events", last.Table)
	assert.ElementsMatch(t, []string{"user", "auditor"}, report.Roles)
}

func TestDiffCommentChangeIsModification(t *testing.T) {
	doc := mustNormalize(t, twoSourceDoc)
	edited := doc.Clone()
	edited.Sources[0].Tables[1].SelectPermissions[0].Comment = []byte(`"updated"`)

	report := Diff(doc, edited)
	require.Len(t, report.Items, 1)
	assert.Equal(t, ChangeModified, report.Items[0].Type)
}

func TestDiffNilDocuments(t *testing.T) {
	doc := mustNormalize(t, twoSourceDoc)

	report := Diff(nil, doc)
	assert.Equal(t, 6, report.Added)

	report = Diff(doc, nil)
	assert.Equal(t, 6, report.Removed)
}
