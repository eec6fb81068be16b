package commands_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmesh-labs/hexmesh/internal/cli"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRegisterAndListDatasets(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t,
		"register", "--database-dir", dir,
		"--name", "temperatures",
		"--type", "h3",
		"--interval", "monthly",
		"--description", "monthly surface temperatures",
		"--key-column", "cell:VARCHAR",
		"--key-column", "year:INTEGER",
		"--key-column", "month:INTEGER",
		"--value-column", "temperature:DOUBLE")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered dataset temperatures")

	out, err = execute(t, "datasets", "--database-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "temperatures")
	assert.Contains(t, out, "monthly")

	out, err = execute(t, "datasets", "--database-dir", dir, "--json")
	require.NoError(t, err)
	var metas []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &metas))
	require.Len(t, metas, 1)
}

func TestRegisterRejectsBadColumnSpec(t *testing.T) {
	_, err := execute(t,
		"register", "--database-dir", t.TempDir(),
		"--name", "x", "--type", "h3",
		"--value-column", "missing-type")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name:TYPE")
}

func TestQueryUnknownDataset(t *testing.T) {
	_, err := execute(t,
		"query", "cell", "--database-dir", t.TempDir(),
		"--dataset", "nope", "--cell", "81443ffffffffff")
	require.Error(t, err)
}

func TestCorrelateRejectsMissingFile(t *testing.T) {
	_, err := execute(t, "correlate", "/does/not/exist.json",
		"--database-dir", t.TempDir())
	require.Error(t, err)
}
