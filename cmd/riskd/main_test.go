package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risk-engine/internal/artifact"
	"risk-engine/internal/common"
	"risk-engine/internal/ensemble"
)

type downSource struct{}

func (downSource) Active(context.Context, string) (*artifact.Artifact, error) {
	return nil, errors.New("store offline")
}

func writeArtifacts(t *testing.T, dir string) map[string]string {
	t.Helper()
	versions := map[string]string{}
	for _, family := range []string{common.FamilyFraud, common.FamilyCredit} {
		a := artifact.Constant(family, 0.2)
		require.NoError(t, artifact.Save(filepath.Join(dir, artifact.FileName(family)), a))
		versions[family] = a.Version
	}
	return versions
}

func servedVersion(t *testing.T, reg *ensemble.Registry, family string) string {
	t.Helper()
	e, err := reg.Get(family)
	require.NoError(t, err)
	return e.Version()
}

func TestLoadModels_FileFallbackOnlyAtStartup(t *testing.T) {
	dir := t.TempDir()
	files := writeArtifacts(t, dir)
	reg := ensemble.NewRegistry(nil)

	loadModels(context.Background(), reg, downSource{}, dir, true)
	assert.Equal(t, files[common.FamilyFraud], servedVersion(t, reg, common.FamilyFraud))
	assert.Equal(t, files[common.FamilyCredit], servedVersion(t, reg, common.FamilyCredit))

	// a newer version activated from the store earlier in the process
	current, err := reg.Install(artifact.Constant(common.FamilyFraud, 0.6))
	require.NoError(t, err)

	loadModels(context.Background(), reg, downSource{}, dir, false)
	assert.Equal(t, current.Version(), servedVersion(t, reg, common.FamilyFraud))
}

func TestLoadModels_FilesWithoutStore(t *testing.T) {
	dir := t.TempDir()
	files := writeArtifacts(t, dir)
	reg := ensemble.NewRegistry(nil)
	_, err := reg.Install(artifact.Constant(common.FamilyFraud, 0.6))
	require.NoError(t, err)

	loadModels(context.Background(), reg, nil, dir, false)
	assert.Equal(t, files[common.FamilyFraud], servedVersion(t, reg, common.FamilyFraud))
}

func TestLoadModels_NothingAvailable(t *testing.T) {
	reg := ensemble.NewRegistry(nil)
	loadModels(context.Background(), reg, downSource{}, t.TempDir(), true)
	for _, family := range reg.Families() {
		_, err := reg.Get(family)
		var nt *ensemble.ModelNotTrainedError
		assert.ErrorAs(t, err, &nt)
	}
}
